package web

import (
	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-router"
)

// WithManager makes m available to handlers through
// authclient.ManagerFromContext and authclient.SessionFromContext.
func WithManager(m *authclient.Manager) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			ctx.SetContext(authclient.ContextWithManager(ctx.Context(), m))
			return next(ctx)
		}
	}
}

// RequireSession sends unauthenticated requests to loginRoute.
func RequireSession(loginRoute string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			s, ok := authclient.SessionFromContext(ctx.Context())
			if !ok || s.Status == authclient.StatusUnauthenticated {
				return ctx.Redirect(loginRoute, router.StatusSeeOther)
			}
			return next(ctx)
		}
	}
}
