package authclient

import (
	"context"
	"net/http"
)

const pathHealth = "/health"

// HealthChecker checks the backend liveness endpoint.
type HealthChecker struct {
	api *APIClient
}

// NewHealthChecker creates a checker backed by api.
func NewHealthChecker(api *APIClient) *HealthChecker {
	return &HealthChecker{api: api}
}

// Check returns the reported status, e.g. "ok".
func (h *HealthChecker) Check(ctx context.Context) (string, error) {
	res, err := h.api.do(ctx, http.MethodGet, pathHealth, requestOptions{})
	if err != nil {
		return "", err
	}

	if !res.OK() {
		return "", withMessage(ErrTransient, res.message(), nil, map[string]any{
			"path":   pathHealth,
			"status": res.Status,
		})
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := res.decode(&payload); err != nil || payload.Status == "" {
		return "", newError(ErrProtocol, err, map[string]any{"path": pathHealth})
	}

	return payload.Status, nil
}
