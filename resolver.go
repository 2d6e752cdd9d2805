package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const pathMe = "/auth/me"

// HTTPProfileResolver resolves profiles through GET /auth/me.
type HTTPProfileResolver struct {
	api    *APIClient
	logger Logger
}

// ResolverOption customizes an HTTPProfileResolver.
type ResolverOption func(*HTTPProfileResolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(l Logger) ResolverOption {
	return func(r *HTTPProfileResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewHTTPProfileResolver creates a resolver backed by api.
func NewHTTPProfileResolver(api *APIClient, opts ...ResolverOption) *HTTPProfileResolver {
	r := &HTTPProfileResolver{
		api:    api,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve implements ProfileResolver.
//
// 401 and 403 map to ErrInvalidToken, a 2xx without a user object maps to
// ErrProtocol, everything else to ErrTransient.
func (r *HTTPProfileResolver) Resolve(ctx context.Context, token string) (*Profile, error) {
	if strings.TrimSpace(token) == "" {
		return nil, newError(ErrInvalidToken, nil, map[string]any{"reason": "empty token"})
	}

	res, err := r.api.do(ctx, http.MethodGet, pathMe, requestOptions{bearer: token})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"path": pathMe, "status": res.Status}

	switch {
	case res.Status == http.StatusUnauthorized || res.Status == http.StatusForbidden:
		r.logger.Info("token rejected by server", "status", res.Status)
		return nil, withMessage(ErrInvalidToken, res.message(), nil, meta)
	case !res.OK():
		r.logger.Warn("profile lookup failed", "status", res.Status)
		return nil, withMessage(ErrTransient, res.message(), nil, meta)
	}

	var payload struct {
		User json.RawMessage `json:"user"`
	}
	if err := res.decode(&payload); err != nil {
		return nil, newError(ErrProtocol, err, meta)
	}

	var claims map[string]any
	if len(payload.User) == 0 || json.Unmarshal(payload.User, &claims) != nil || claims == nil {
		meta["reason"] = "missing user object"
		return nil, newError(ErrProtocol, nil, meta)
	}

	profile, ok := ProfileFromClaims(claims)
	if !ok {
		meta["reason"] = "user object without subject"
		return nil, newError(ErrProtocol, nil, meta)
	}

	return profile, nil
}
