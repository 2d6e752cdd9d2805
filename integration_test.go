package authclient_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/portaltest"
	"github.com/goliatone/go-auth-client/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type portalClient struct {
	backend *portaltest.Server
	api     *authclient.APIClient
	store   *store.Memory
	manager *authclient.Manager
	submit  *authclient.LocalSubmitter
}

func newPortalClient(t *testing.T, seed ...string) *portalClient {
	t.Helper()

	backend := portaltest.New()
	t.Cleanup(backend.Close)

	api := authclient.NewAPIClient(backend.BaseURL(), authclient.WithAPILogger(authclient.NoopLogger()))
	resolver := authclient.NewHTTPProfileResolver(api, authclient.WithResolverLogger(authclient.NoopLogger()))
	creds := store.NewMemory(seed...)
	m := newTestManager(creds, resolver)

	return &portalClient{
		backend: backend,
		api:     api,
		store:   creds,
		manager: m,
		submit:  authclient.NewLocalSubmitter(api, m, authclient.WithLocalLogger(authclient.NoopLogger())),
	}
}

func TestIntegrationRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	c := newPortalClient(t)

	c.submit.SetMode(authclient.ModeRegister)
	res, err := c.submit.Submit(ctx, authclient.LocalForm{
		Email:    "ada@example.com",
		Password: "password123",
		Name:     "Ada Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, authclient.ModeLogin, res.Mode)
	assert.False(t, c.manager.IsAuthenticated())

	_, err = c.submit.Submit(ctx, authclient.LocalForm{Email: "ada@example.com", Password: "wrong-password"})
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", authclient.UserMessage(err, ""))

	res, err = c.submit.Submit(ctx, authclient.LocalForm{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.True(t, res.LoggedIn)

	snap := c.manager.Snapshot()
	require.True(t, snap.IsAuthenticated())
	assert.Equal(t, "ada@example.com", snap.Profile.Email)
	assert.Equal(t, "Ada Lovelace", snap.Profile.Name())
	assert.Equal(t, "AL", snap.Profile.Initials())
	assert.Equal(t, authclient.AuthSourceLocal, snap.Profile.AuthSource)
	assert.NotEmpty(t, snap.Profile.Subject)

	exp, ok := authclient.TokenExpiry(snap.Token)
	require.True(t, ok)
	assert.True(t, exp.After(time.Now()))
}

func TestIntegrationOpenIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newPortalClient(t)
	c.backend.SetCallbackURL("http://127.0.0.1:5173/auth/callback")

	var authURL string
	initiator := authclient.NewOpenIDInitiator(c.api, "portal", authclient.RedirectorFunc(func(_ context.Context, u string) error {
		authURL = u
		return nil
	}), authclient.WithOpenIDLogger(authclient.NoopLogger()))

	_, err := initiator.Begin(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, authURL)

	params := followToCallback(t, authURL)

	resolved := make(chan struct{})
	c.manager.Subscribe(func(evt authclient.SessionEvent) {
		if evt.Type == authclient.EventResolved {
			close(resolved)
		}
	})

	view := &recordingView{}
	h := authclient.NewCallbackHandler(c.manager, authclient.WithCallbackLogger(authclient.NoopLogger()))
	decision := h.Handle(ctx, params, view)
	require.Equal(t, authclient.CallbackToken, decision.Outcome)
	assert.Equal(t, []string{"/"}, view.Routes())

	select {
	case <-resolved:
	case <-time.After(2 * time.Second):
		t.Fatal("openid session was not resolved")
	}

	snap := c.manager.Snapshot()
	assert.Equal(t, authclient.AuthSourceOpenID, snap.Profile.AuthSource)
	assert.Equal(t, "openid.user@example.com", snap.Profile.Email)

	stored, err := c.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, decision.Token, stored)
}

func TestIntegrationOpenIDDenied(t *testing.T) {
	ctx := context.Background()
	c := newPortalClient(t)

	initiator := authclient.NewOpenIDInitiator(c.api, "portal", nil, authclient.WithOpenIDLogger(authclient.NoopLogger()))
	authURL, err := initiator.AuthorizationURL(ctx)
	require.NoError(t, err)

	params := followToCallback(t, authURL+"&deny=1")

	view := &recordingView{}
	h := authclient.NewCallbackHandler(c.manager,
		authclient.WithCallbackDelay(10*time.Millisecond),
		authclient.WithCallbackLogger(authclient.NoopLogger()),
	)
	h.Handle(ctx, params, view)

	assert.Equal(t, []string{"User cancelled"}, view.Errors())
	require.Eventually(t, func() bool {
		return len(view.Routes()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "/login", view.Routes()[0])
	assert.Equal(t, authclient.StatusUnauthenticated, c.manager.Snapshot().Status)
}

func TestIntegrationOpenIDMissingURL(t *testing.T) {
	c := newPortalClient(t)
	c.backend.OmitAuthURL(true)

	initiator := authclient.NewOpenIDInitiator(c.api, "portal", nil, authclient.WithOpenIDLogger(authclient.NoopLogger()))
	_, err := initiator.Begin(context.Background())
	require.Error(t, err)
	assert.Equal(t, "No authorization URL returned from server", authclient.UserMessage(err, ""))
}

func TestIntegrationBootstrapRevokedToken(t *testing.T) {
	backend := portaltest.New()
	t.Cleanup(backend.Close)

	token := backend.IssueToken("u1", "ada@example.com", "Ada", "local")
	backend.Revoke(token)

	api := authclient.NewAPIClient(backend.BaseURL(), authclient.WithAPILogger(authclient.NoopLogger()))
	creds := store.NewMemory(token)
	m := newTestManager(creds, authclient.NewHTTPProfileResolver(api, authclient.WithResolverLogger(authclient.NoopLogger())))

	err := m.Bootstrap(context.Background())
	require.Error(t, err)
	assert.True(t, authclient.IsInvalidToken(err))
	assert.Equal(t, authclient.StatusUnauthenticated, m.Snapshot().Status)
	assert.Empty(t, storedToken(t, creds))
}

func TestIntegrationBootstrapSurvivesOutage(t *testing.T) {
	ctx := context.Background()
	backend := portaltest.New()
	t.Cleanup(backend.Close)

	token := backend.IssueToken("u1", "ada@example.com", "Ada", "local")
	backend.Override("/auth/me", http.StatusServiceUnavailable, `{"message":"maintenance"}`)

	api := authclient.NewAPIClient(backend.BaseURL(), authclient.WithAPILogger(authclient.NoopLogger()))
	creds := store.NewMemory(token)
	m := newTestManager(creds, authclient.NewHTTPProfileResolver(api, authclient.WithResolverLogger(authclient.NoopLogger())))

	err := m.Bootstrap(ctx)
	require.Error(t, err)
	assert.True(t, authclient.IsTransient(err))
	assert.Equal(t, "maintenance", authclient.UserMessage(err, ""))
	assert.Equal(t, token, storedToken(t, creds))

	backend.Override("/auth/me", 0, "")
	require.NoError(t, m.Retry(ctx))
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, 2, backend.Hits("/api/auth/me"))
}

func TestIntegrationHealth(t *testing.T) {
	c := newPortalClient(t)
	health := authclient.NewHealthChecker(c.api)

	status, err := health.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status)

	c.backend.Override("/health", http.StatusServiceUnavailable, `{"message":"maintenance"}`)
	_, err = health.Check(context.Background())
	require.Error(t, err)
	assert.True(t, authclient.IsTransient(err))

	c.backend.Override("/health", http.StatusOK, `{}`)
	_, err = health.Check(context.Background())
	require.Error(t, err)
	assert.True(t, authclient.IsProtocolError(err))
}

// followToCallback follows the identity provider hop and returns the query
// the browser would arrive with at the callback route.
func followToCallback(t *testing.T, authURL string) url.Values {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	res, err := client.Get(authURL)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusFound, res.StatusCode)

	location, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback", location.Path)

	return location.Query()
}
