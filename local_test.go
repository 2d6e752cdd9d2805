package authclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeForm(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestLocalSubmitterModes(t *testing.T) {
	s := authclient.NewLocalSubmitter(nil, nil)
	assert.Equal(t, authclient.ModeLogin, s.Mode())

	assert.Equal(t, authclient.ModeRegister, s.Toggle())
	assert.Equal(t, authclient.ModeLogin, s.Toggle())

	s.SetMode(authclient.ModeRegister)
	assert.Equal(t, authclient.ModeRegister, s.Mode())

	s.SetMode("bogus")
	assert.Equal(t, authclient.ModeLogin, s.Mode())
}

func TestLocalSubmitterRegisterSwitchesToLogin(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body := decodeForm(t, r)
		assert.Equal(t, "new@example.com", body["email"])
		assert.Equal(t, "password123", body["password"])
		assert.Equal(t, "New User", body["name"])

		writeJSON(w, http.StatusCreated, `{"message":"User registered"}`)
	})

	auth := new(MockAuthenticator)
	s := authclient.NewLocalSubmitter(api, auth, authclient.WithLocalLogger(authclient.NoopLogger()))
	s.SetMode(authclient.ModeRegister)

	res, err := s.Submit(context.Background(), authclient.LocalForm{
		Email:    " new@example.com ",
		Password: "password123",
		Name:     "New User",
	})
	require.NoError(t, err)

	assert.Equal(t, authclient.ModeLogin, res.Mode)
	assert.Equal(t, "Registration successful. Please login.", res.Message)
	assert.False(t, res.LoggedIn)
	assert.Equal(t, authclient.ModeLogin, s.Mode())
	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestLocalSubmitterLoginAuthenticates(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		body := decodeForm(t, r)
		assert.Equal(t, "ada@example.com", body["email"])
		_, hasName := body["name"]
		assert.False(t, hasName)

		writeJSON(w, http.StatusOK, `{"token":"tok-ada"}`)
	})

	creds := store.NewMemory()
	m := newTestManager(creds, staticResolver(&authclient.Profile{Subject: "ada"}, nil))
	s := authclient.NewLocalSubmitter(api, m, authclient.WithLocalLogger(authclient.NoopLogger()))

	res, err := s.Submit(context.Background(), authclient.LocalForm{
		Email:    "ada@example.com",
		Password: "secret",
		Name:     "ignored in login mode",
	})
	require.NoError(t, err)
	assert.True(t, res.LoggedIn)
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "tok-ada", storedToken(t, creds))
}

func TestLocalSubmitterLoginWithoutTokenIsProtocolError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"message":"welcome"}`)
	})

	creds := store.NewMemory()
	m := newTestManager(creds, staticResolver(&authclient.Profile{Subject: "ada"}, nil))
	s := authclient.NewLocalSubmitter(api, m, authclient.WithLocalLogger(authclient.NoopLogger()))

	res, err := s.Submit(context.Background(), authclient.LocalForm{Email: "ada@example.com", Password: "secret"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, authclient.IsProtocolError(err))
	assert.Equal(t, "No token returned from server", authclient.UserMessage(err, ""))

	assert.Equal(t, authclient.StatusUnauthenticated, m.Snapshot().Status)
	assert.Empty(t, storedToken(t, creds))
}

func TestLocalSubmitterSessionFailure(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"token":"tok"}`)
	})

	auth := new(MockAuthenticator)
	auth.On("Login", mock.Anything, "tok").Return(authclient.ErrTransient).Once()

	s := authclient.NewLocalSubmitter(api, auth, authclient.WithLocalLogger(authclient.NoopLogger()))

	res, err := s.Submit(context.Background(), authclient.LocalForm{Email: "ada@example.com", Password: "secret"})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.LoggedIn)
	assert.True(t, authclient.IsTransient(err))
	auth.AssertExpectations(t)
}

func TestLocalSubmitterRejections(t *testing.T) {
	tests := []struct {
		name    string
		mode    authclient.FormMode
		status  int
		body    string
		checkFn func(error) bool
		message string
	}{
		{
			name:    "login rejected with backend message",
			mode:    authclient.ModeLogin,
			status:  http.StatusUnauthorized,
			body:    `{"message":"Invalid email or password"}`,
			checkFn: authclient.IsValidationError,
			message: "Invalid email or password",
		},
		{
			name:    "login rejected without message",
			mode:    authclient.ModeLogin,
			status:  http.StatusBadRequest,
			checkFn: authclient.IsValidationError,
			message: "Failed to login",
		},
		{
			name:    "register conflict",
			mode:    authclient.ModeRegister,
			status:  http.StatusConflict,
			body:    `{"message":"Email already registered"}`,
			checkFn: authclient.IsValidationError,
			message: "Email already registered",
		},
		{
			name:    "register server failure",
			mode:    authclient.ModeRegister,
			status:  http.StatusInternalServerError,
			checkFn: authclient.IsTransient,
			message: "Failed to register",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			auth := new(MockAuthenticator)
			s := authclient.NewLocalSubmitter(api, auth, authclient.WithLocalLogger(authclient.NoopLogger()))
			s.SetMode(tt.mode)

			_, err := s.Submit(context.Background(), authclient.LocalForm{
				Email:    "ada@example.com",
				Password: "password123",
				Name:     "Ada",
			})
			require.Error(t, err)
			assert.True(t, tt.checkFn(err))
			assert.Equal(t, tt.message, authclient.UserMessage(err, ""))
			assert.Equal(t, tt.mode, s.Mode())
			auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
		})
	}
}

func TestLocalSubmitterValidatesBeforeSubmitting(t *testing.T) {
	tests := []struct {
		name   string
		mode   authclient.FormMode
		form   authclient.LocalForm
		fields []string
	}{
		{
			name:   "login requires email and password",
			mode:   authclient.ModeLogin,
			form:   authclient.LocalForm{},
			fields: []string{"email", "password"},
		},
		{
			name:   "login rejects malformed email",
			mode:   authclient.ModeLogin,
			form:   authclient.LocalForm{Email: "not-an-email", Password: "x"},
			fields: []string{"email"},
		},
		{
			name:   "register requires name",
			mode:   authclient.ModeRegister,
			form:   authclient.LocalForm{Email: "ada@example.com", Password: "password123", Name: "  "},
			fields: []string{"name"},
		},
		{
			name:   "register enforces password length",
			mode:   authclient.ModeRegister,
			form:   authclient.LocalForm{Email: "ada@example.com", Password: "short", Name: "Ada"},
			fields: []string{"password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := 0
			api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				hits++
			})

			s := authclient.NewLocalSubmitter(api, nil, authclient.WithLocalLogger(authclient.NoopLogger()))
			s.SetMode(tt.mode)

			_, err := s.Submit(context.Background(), tt.form)
			require.Error(t, err)
			assert.True(t, authclient.IsValidationError(err))

			fields := authclient.FieldErrors(err)
			for _, f := range tt.fields {
				assert.Contains(t, fields, f)
			}
			assert.Len(t, fields, len(tt.fields))
			assert.Zero(t, hits)
		})
	}
}

func TestLocalSubmitterLoginSupersededByLogout(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"token":"tok-1"}`)
	})

	resolver := newBlockingResolver()
	m := newTestManager(store.NewMemory(), resolver)
	s := authclient.NewLocalSubmitter(api, m, authclient.WithLocalLogger(authclient.NoopLogger()))

	type outcome struct {
		res *authclient.SubmitResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Submit(context.Background(), authclient.LocalForm{Email: "jane@example.com", Password: "secret"})
		done <- outcome{res, err}
	}()

	<-resolver.started
	m.Logout(context.Background())
	close(resolver.release)

	got := <-done
	require.Error(t, got.err)
	assert.True(t, authclient.IsSuperseded(got.err))
	require.NotNil(t, got.res)
	assert.False(t, got.res.LoggedIn)
	assert.False(t, m.IsAuthenticated())
}
