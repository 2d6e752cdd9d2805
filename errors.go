package authclient

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeConfig           = "CONFIG_ERROR"
	TextCodeProtocol         = "PROTOCOL_ERROR"
	TextCodeInvalidToken     = "INVALID_TOKEN"
	TextCodeTransient        = "TRANSIENT_ERROR"
	TextCodeValidation       = "VALIDATION_ERROR"
	TextCodeAuthorizationURL = "AUTHORIZATION_URL_ERROR"
	TextCodeInvalidState     = "INVALID_SESSION_TRANSITION"
	TextCodeBootstrapped     = "SESSION_ALREADY_BOOTSTRAPPED"
	TextCodeSuperseded       = "SESSION_SUPERSEDED"
)

// ErrConfig is returned when required client configuration is missing.
// The action is disabled and must not be retried.
var ErrConfig = goerrors.New("client configuration missing", goerrors.CategoryBadInput).
	WithTextCode(TextCodeConfig).
	WithCode(goerrors.CodeBadRequest)

// ErrProtocol is returned when a backend response violates the expected shape.
var ErrProtocol = goerrors.New("unexpected response from server", goerrors.CategoryInternal).
	WithTextCode(TextCodeProtocol).
	WithCode(goerrors.CodeInternal)

// ErrInvalidToken is returned when the backend rejects the bearer token.
// It is the only error that evicts the stored credential.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTransient is returned for network or server failures that say nothing
// about the validity of the token.
var ErrTransient = goerrors.New("service temporarily unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeTransient).
	WithCode(goerrors.CodeInternal)

// ErrValidation is returned when form input is rejected by the client or the server.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrAuthorizationURL is returned when the backend does not provide a usable
// OpenID authorization URL.
var ErrAuthorizationURL = goerrors.New("failed to get authorization URL", goerrors.CategoryBadInput).
	WithTextCode(TextCodeAuthorizationURL).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidTransition is returned when the session state machine is asked
// for a move its transition table does not allow.
var ErrInvalidTransition = goerrors.New("invalid session transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidState).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyBootstrapped is returned by a second Bootstrap call.
var ErrAlreadyBootstrapped = goerrors.New("session already bootstrapped", goerrors.CategoryConflict).
	WithTextCode(TextCodeBootstrapped).
	WithCode(goerrors.CodeConflict)

// ErrSuperseded is returned by a login, bootstrap or retry whose profile
// resolution finished after a newer login or a logout took over the session.
var ErrSuperseded = goerrors.New("session changed before the login completed", goerrors.CategoryConflict).
	WithTextCode(TextCodeSuperseded).
	WithCode(goerrors.CodeConflict)

const metaMessage = "message"

// newError clones base, records the cause and merges metadata. base stays
// in the Source chain so errors.Is matches the sentinel.
func newError(base *goerrors.Error, cause error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if cause != nil {
		clone.Source = fmt.Errorf("%w: %w", base, cause)
	} else if clone != base {
		clone.Source = base
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// withMessage clones base and replaces its message with a user facing one,
// keeping the original in metadata.
func withMessage(base *goerrors.Error, message string, cause error, meta map[string]any) *goerrors.Error {
	if meta == nil {
		meta = map[string]any{}
	}
	if message != "" {
		meta[metaMessage] = message
	}
	clone := newError(base, cause, meta)
	if message != "" {
		clone.Message = message
	}
	return clone
}

func isKind(err error, base *goerrors.Error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == base.TextCode && richErr.Category == base.Category
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return isKind(err, ErrConfig) }

// IsProtocolError reports whether err is a protocol error.
func IsProtocolError(err error) bool { return isKind(err, ErrProtocol) }

// IsInvalidToken reports whether err signals a server confirmed invalid token.
func IsInvalidToken(err error) bool { return isKind(err, ErrInvalidToken) }

// IsTransient reports whether err is a transient failure.
func IsTransient(err error) bool { return isKind(err, ErrTransient) }

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool { return isKind(err, ErrValidation) }

// IsAuthorizationURLError reports whether err is an authorization URL error.
func IsAuthorizationURLError(err error) bool { return isKind(err, ErrAuthorizationURL) }

// IsSuperseded reports whether a newer login or a logout won over the call
// that returned err.
func IsSuperseded(err error) bool { return isKind(err, ErrSuperseded) }

// UserMessage returns a human readable message for err. A message sourced
// from the backend wins, then fallback, then the error message itself.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if msg, ok := richErr.Metadata[metaMessage].(string); ok && msg != "" {
			return msg
		}
	}
	if fallback != "" {
		return fallback
	}
	if richErr != nil && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

// FieldErrors returns the per field validation messages attached to err.
func FieldErrors(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}
	fields, _ := richErr.Metadata["fields"].(map[string]string)
	return fields
}
