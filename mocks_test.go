package authclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/mock"
)

// MockProfileResolver implements authclient.ProfileResolver
type MockProfileResolver struct {
	mock.Mock
}

func (m *MockProfileResolver) Resolve(ctx context.Context, token string) (*authclient.Profile, error) {
	args := m.Called(ctx, token)
	profile, _ := args.Get(0).(*authclient.Profile)
	return profile, args.Error(1)
}

// MockAuthenticator implements authclient.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuthenticator) LoginAsync(ctx context.Context, token string) <-chan error {
	args := m.Called(ctx, token)
	out := make(chan error, 1)
	out <- args.Error(0)
	close(out)
	return out
}

func (m *MockAuthenticator) Logout(ctx context.Context) {
	m.Called(ctx)
}

// failingStore fails the configured operations.
type failingStore struct {
	getErr   error
	setErr   error
	clearErr error
	token    string
}

func (s *failingStore) Get(context.Context) (string, error) { return s.token, s.getErr }
func (s *failingStore) Set(_ context.Context, token string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.token = token
	return nil
}
func (s *failingStore) Clear(context.Context) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.token = ""
	return nil
}

var errDisk = errors.New("disk unavailable")

// recordingView implements authclient.CallbackView
type recordingView struct {
	mu     sync.Mutex
	errors []string
	routes []string
}

func (v *recordingView) ShowError(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, message)
}

func (v *recordingView) Navigate(route string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.routes = append(v.routes, route)
}

func (v *recordingView) Routes() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.routes...)
}

func (v *recordingView) Errors() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.errors...)
}

// blockingResolver resolves every token to a profile once released.
type blockingResolver struct {
	release chan struct{}
	started chan string
}

func newBlockingResolver() *blockingResolver {
	return &blockingResolver{
		release: make(chan struct{}),
		started: make(chan string, 8),
	}
}

func (b *blockingResolver) Resolve(ctx context.Context, token string) (*authclient.Profile, error) {
	b.started <- token
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &authclient.Profile{Subject: "sub-" + token}, nil
}

func staticResolver(profile *authclient.Profile, err error) authclient.ProfileResolver {
	return authclient.ProfileResolverFunc(func(context.Context, string) (*authclient.Profile, error) {
		return profile, err
	})
}

func newTestAPI(t *testing.T, handler http.HandlerFunc) *authclient.APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return authclient.NewAPIClient(srv.URL+"/api", authclient.WithAPILogger(authclient.NoopLogger()))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
