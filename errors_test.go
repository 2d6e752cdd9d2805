package authclient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	plain := errors.New("plain")

	assert.False(t, authclient.IsTransient(nil))
	assert.False(t, authclient.IsTransient(plain))
	assert.False(t, authclient.IsInvalidToken(authclient.ErrTransient))
	assert.True(t, authclient.IsInvalidToken(authclient.ErrInvalidToken))
	assert.True(t, authclient.IsConfigError(authclient.ErrConfig))
	assert.False(t, authclient.IsValidationError(authclient.ErrConfig))
	assert.Nil(t, authclient.FieldErrors(plain))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, authclient.UserMessage(nil, "fallback"))
	assert.Equal(t, "fallback", authclient.UserMessage(errors.New("raw"), "fallback"))
	assert.Equal(t, "raw", authclient.UserMessage(errors.New("raw"), ""))
	assert.Equal(t, "fallback", authclient.UserMessage(authclient.ErrTransient, "fallback"))
	assert.Equal(t, authclient.ErrTransient.Message, authclient.UserMessage(authclient.ErrTransient, ""))
}

func TestErrorsMatchSentinels(t *testing.T) {
	sentinels := []error{
		authclient.ErrConfig,
		authclient.ErrProtocol,
		authclient.ErrInvalidToken,
		authclient.ErrTransient,
		authclient.ErrValidation,
		authclient.ErrAuthorizationURL,
	}

	resolveWith := func(status int, body string) error {
		api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, body)
		})
		_, err := authclient.NewHTTPProfileResolver(api, authclient.WithResolverLogger(authclient.NoopLogger())).Resolve(context.Background(), "tok")
		return err
	}

	authURLErr := func() error {
		api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{}`)
		})
		_, err := authclient.NewOpenIDInitiator(api, "portal", nil, authclient.WithOpenIDLogger(authclient.NoopLogger())).AuthorizationURL(context.Background())
		return err
	}

	configErr := func() error {
		api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := authclient.NewOpenIDInitiator(api, "", nil, authclient.WithOpenIDLogger(authclient.NoopLogger())).AuthorizationURL(context.Background())
		return err
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unauthorized", err: resolveWith(http.StatusUnauthorized, `{"message":"Invalid token"}`), want: authclient.ErrInvalidToken},
		{name: "forbidden", err: resolveWith(http.StatusForbidden, `{}`), want: authclient.ErrInvalidToken},
		{name: "bad gateway", err: resolveWith(http.StatusBadGateway, `{}`), want: authclient.ErrTransient},
		{name: "missing user", err: resolveWith(http.StatusOK, `{}`), want: authclient.ErrProtocol},
		{name: "form", err: authclient.LocalForm{}.Validate(authclient.ModeLogin), want: authclient.ErrValidation},
		{name: "authorization url", err: authURLErr(), want: authclient.ErrAuthorizationURL},
		{name: "config", err: configErr(), want: authclient.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			for _, sentinel := range sentinels {
				if sentinel == tt.want {
					assert.ErrorIs(t, tt.err, sentinel)
				} else {
					assert.NotErrorIs(t, tt.err, sentinel)
				}
			}
		})
	}
}

func TestErrorsKeepCause(t *testing.T) {
	cause := errors.New("disk full")
	m := newTestManager(&failingStore{getErr: cause}, staticResolver(nil, nil))

	err := m.Bootstrap(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, authclient.ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.True(t, authclient.IsTransient(err))
}

func TestBootstrapConflictsAreDistinct(t *testing.T) {
	m := newTestManager(store.NewMemory(), staticResolver(nil, nil))
	require.NoError(t, m.Bootstrap(context.Background()))

	err := m.Bootstrap(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, authclient.ErrAlreadyBootstrapped)
	assert.NotErrorIs(t, err, authclient.ErrInvalidTransition)
	assert.NotEqual(t, authclient.ErrAlreadyBootstrapped.TextCode, authclient.ErrInvalidTransition.TextCode)
}
