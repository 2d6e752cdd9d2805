package authclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pathOpenIDURL = "/auth/openid/url"

// OpenIDInitiator starts the OpenID redirect flow: it asks the backend for
// the authorization URL and hands it to a Redirector. The protocol then
// continues on the backend and comes back through the callback route.
type OpenIDInitiator struct {
	api        *APIClient
	clientID   string
	redirector Redirector
	logger     Logger
	now        func() time.Time
}

// OpenIDOption customizes an OpenIDInitiator.
type OpenIDOption func(*OpenIDInitiator)

// WithOpenIDLogger sets the logger.
func WithOpenIDLogger(l Logger) OpenIDOption {
	return func(o *OpenIDInitiator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOpenIDClock injects the clock used for the cache busting parameter.
func WithOpenIDClock(clock func() time.Time) OpenIDOption {
	return func(o *OpenIDInitiator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// NewOpenIDInitiator creates an initiator. An empty clientID disables it.
func NewOpenIDInitiator(api *APIClient, clientID string, redirector Redirector, opts ...OpenIDOption) *OpenIDInitiator {
	o := &OpenIDInitiator{
		api:        api,
		clientID:   strings.TrimSpace(clientID),
		redirector: redirector,
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Enabled reports whether an OpenID client id is configured. UIs use it to
// disable the action.
func (o *OpenIDInitiator) Enabled() bool {
	return o.clientID != ""
}

// AuthorizationURL fetches the identity provider URL without redirecting.
func (o *OpenIDInitiator) AuthorizationURL(ctx context.Context) (string, error) {
	if !o.Enabled() {
		return "", withMessage(ErrConfig, "OpenID Client ID is not configured", nil, nil)
	}

	query := url.Values{}
	query.Set("t", strconv.FormatInt(o.now().UnixMilli(), 10))

	res, err := o.api.do(ctx, http.MethodGet, pathOpenIDURL, requestOptions{query: query})
	if err != nil {
		return "", err
	}

	meta := map[string]any{"path": pathOpenIDURL, "status": res.Status}

	if !res.OK() {
		msg := res.message()
		if msg == "" {
			msg = "Failed to get authorization URL"
		}
		return "", withMessage(ErrAuthorizationURL, msg, nil, meta)
	}

	var payload struct {
		AuthURL string `json:"authUrl"`
	}
	if err := res.decode(&payload); err != nil {
		return "", withMessage(ErrAuthorizationURL, "No authorization URL returned from server", err, meta)
	}

	authURL := strings.TrimSpace(payload.AuthURL)
	if u, perr := url.Parse(authURL); authURL == "" || perr != nil || !u.IsAbs() || u.Host == "" {
		return "", withMessage(ErrAuthorizationURL, "No authorization URL returned from server", perr, meta)
	}

	return authURL, nil
}

// Begin fetches the authorization URL and redirects to it. The redirect is
// irrevocable; there is no further client state to manage.
func (o *OpenIDInitiator) Begin(ctx context.Context) (string, error) {
	authURL, err := o.AuthorizationURL(ctx)
	if err != nil {
		o.logger.Warn("openid login could not start", "error", err)
		return "", err
	}

	o.logger.Info("redirecting to identity provider")

	if o.redirector != nil {
		if err := o.redirector.Redirect(ctx, authURL); err != nil {
			o.logger.Debug("redirect handoff failed", "error", err)
		}
	}

	return authURL, nil
}
