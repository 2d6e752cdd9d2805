package authclient

import (
	"context"
	"net/http"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	pathLogin    = "/auth/login"
	pathRegister = "/auth/register"
)

// MinPasswordLength is enforced client side in register mode.
const MinPasswordLength = 8

// FormMode selects what the local form submits.
type FormMode string

const (
	ModeLogin    FormMode = "login"
	ModeRegister FormMode = "register"
)

// RegisteredMessage confirms a successful registration.
const RegisteredMessage = "Registration successful. Please login."

// LocalForm is the local email/password form payload.
type LocalForm struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Name     string `json:"name,omitempty" form:"name"`
}

// Validate will run the structural rules for mode. Correctness is left to
// the backend.
func (f LocalForm) Validate(mode FormMode) error {
	rules := []*validation.FieldRules{
		validation.Field(&f.Email, validation.Required, is.Email),
	}

	if mode == ModeRegister {
		rules = append(rules,
			validation.Field(&f.Password, validation.Required, validation.RuneLength(MinPasswordLength, 0)),
			validation.Field(&f.Name, validation.Required),
		)
	} else {
		rules = append(rules, validation.Field(&f.Password, validation.Required))
	}

	if err := validation.ValidateStruct(&f, rules...); err != nil {
		return withMessage(ErrValidation, err.Error(), err, map[string]any{
			"fields": validationFields(err),
			"mode":   string(mode),
		})
	}
	return nil
}

// SubmitResult reports a successful submission.
type SubmitResult struct {
	Mode     FormMode
	Message  string
	LoggedIn bool
}

// LocalSubmitter drives the local login and register form. It keeps the
// form mode and hands tokens to the session; it never touches storage.
type LocalSubmitter struct {
	api    *APIClient
	auth   Authenticator
	logger Logger

	mu   sync.Mutex
	mode FormMode
}

// LocalOption customizes a LocalSubmitter.
type LocalOption func(*LocalSubmitter)

// WithLocalLogger sets the logger.
func WithLocalLogger(l Logger) LocalOption {
	return func(s *LocalSubmitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLocalSubmitter creates a submitter in login mode.
func NewLocalSubmitter(api *APIClient, auth Authenticator, opts ...LocalOption) *LocalSubmitter {
	s := &LocalSubmitter{
		api:    api,
		auth:   auth,
		logger: defLogger{},
		mode:   ModeLogin,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Mode returns the current form mode.
func (s *LocalSubmitter) Mode() FormMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the form mode.
func (s *LocalSubmitter) SetMode(mode FormMode) {
	if mode != ModeRegister {
		mode = ModeLogin
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// Toggle flips between login and register and returns the new mode.
func (s *LocalSubmitter) Toggle() FormMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeRegister {
		s.mode = ModeLogin
	} else {
		s.mode = ModeRegister
	}
	return s.mode
}

// Submit validates and submits form in the current mode.
//
// Register success switches the form to login mode without logging in.
// Login success requires a token in the response and hands it to the
// session. Non 2xx responses surface the backend message or a generic one.
func (s *LocalSubmitter) Submit(ctx context.Context, form LocalForm) (*SubmitResult, error) {
	mode := s.Mode()
	form.Email = strings.TrimSpace(form.Email)
	form.Name = strings.TrimSpace(form.Name)

	if err := form.Validate(mode); err != nil {
		return nil, err
	}

	if mode == ModeRegister {
		return s.register(ctx, form)
	}
	return s.login(ctx, form)
}

func (s *LocalSubmitter) register(ctx context.Context, form LocalForm) (*SubmitResult, error) {
	res, err := s.api.do(ctx, http.MethodPost, pathRegister, requestOptions{body: form})
	if err != nil {
		return nil, err
	}

	if !res.OK() {
		return nil, s.rejected(res, pathRegister, "Failed to register")
	}

	s.SetMode(ModeLogin)
	s.logger.Info("registration accepted", "email", form.Email)

	return &SubmitResult{
		Mode:    ModeLogin,
		Message: RegisteredMessage,
	}, nil
}

func (s *LocalSubmitter) login(ctx context.Context, form LocalForm) (*SubmitResult, error) {
	form.Name = ""
	res, err := s.api.do(ctx, http.MethodPost, pathLogin, requestOptions{body: form})
	if err != nil {
		return nil, err
	}

	if !res.OK() {
		return nil, s.rejected(res, pathLogin, "Failed to login")
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := res.decode(&payload); err != nil || strings.TrimSpace(payload.Token) == "" {
		return nil, withMessage(ErrProtocol, "No token returned from server", err, map[string]any{
			"path":   pathLogin,
			"status": res.Status,
		})
	}

	if s.auth != nil {
		if err := s.auth.Login(ctx, payload.Token); err != nil {
			return &SubmitResult{Mode: ModeLogin, LoggedIn: false}, err
		}
	}

	return &SubmitResult{Mode: ModeLogin, LoggedIn: true}, nil
}

func (s *LocalSubmitter) rejected(res *apiResponse, path, fallback string) error {
	msg := res.message()
	if msg == "" {
		msg = fallback
	}
	s.logger.Info("local auth rejected", "path", path, "status", res.Status)

	base := ErrValidation
	if res.Status >= http.StatusInternalServerError {
		base = ErrTransient
	}
	return withMessage(base, msg, nil, map[string]any{
		"path":   path,
		"status": res.Status,
	})
}
