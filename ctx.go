package authclient

import (
	"context"
)

var managerCtxKey = &contextKey{"session-manager"}

type contextKey struct {
	name string
}

// ContextWithManager stores the application's Manager in ctx.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerCtxKey, m)
}

// ManagerFromContext returns the Manager stored in ctx.
func ManagerFromContext(ctx context.Context) (*Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(managerCtxKey).(*Manager)
	return m, ok && m != nil
}

// SessionFromContext returns a snapshot of the session held by the Manager
// stored in ctx.
func SessionFromContext(ctx context.Context) (Session, bool) {
	m, ok := ManagerFromContext(ctx)
	if !ok {
		return Session{}, false
	}
	return m.Snapshot(), true
}
