package authclient

import (
	"context"
	"fmt"
	"net/http"
)

// Logger is the structured logger used across the client. Arguments are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialStore persists the bearer token across restarts.
// Get returns an empty string when no token is stored.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// ProfileResolver exchanges a bearer token for the profile it represents.
type ProfileResolver interface {
	Resolve(ctx context.Context, token string) (*Profile, error)
}

// ProfileResolverFunc adapts a function to the ProfileResolver interface.
type ProfileResolverFunc func(ctx context.Context, token string) (*Profile, error)

// Resolve implements ProfileResolver.
func (f ProfileResolverFunc) Resolve(ctx context.Context, token string) (*Profile, error) {
	return f(ctx, token)
}

// Redirector performs the full-page redirect to the identity provider.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// RedirectorFunc adapts a function to the Redirector interface.
type RedirectorFunc func(ctx context.Context, url string) error

// Redirect implements Redirector.
func (f RedirectorFunc) Redirect(ctx context.Context, url string) error {
	if f == nil {
		return nil
	}
	return f(ctx, url)
}

// Authenticator is the capability flow controllers need from the session.
// Manager implements it.
type Authenticator interface {
	Login(ctx context.Context, token string) error
	LoginAsync(ctx context.Context, token string) <-chan error
	Logout(ctx context.Context)
}

type defLogger struct{}

func (defLogger) Debug(msg string, args ...any) { logLine("DBG", msg, args...) }
func (defLogger) Info(msg string, args ...any)  { logLine("INF", msg, args...) }
func (defLogger) Warn(msg string, args ...any)  { logLine("WRN", msg, args...) }
func (defLogger) Error(msg string, args ...any) { logLine("ERR", msg, args...) }

func logLine(level, msg string, args ...any) {
	line := fmt.Sprintf("[%s] AUTH-CLIENT %s", level, msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			line += fmt.Sprintf(" %v", args[i])
		}
	}
	fmt.Println(line)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a Logger that discards every record.
func NoopLogger() Logger {
	return noopLogger{}
}
