package authclient

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Callback query parameters set by the backend when it redirects back.
const (
	ParamToken            = "token"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
)

const msgNoToken = "No token received"

// CallbackOutcome classifies a callback arrival.
type CallbackOutcome string

const (
	CallbackToken   CallbackOutcome = "token"
	CallbackError   CallbackOutcome = "error"
	CallbackNoToken CallbackOutcome = "no_token"
)

// CallbackDecision is what the handler decided for one arrival.
type CallbackDecision struct {
	Outcome  CallbackOutcome
	Token    string
	Message  string
	Redirect string
	Delay    time.Duration
}

// CallbackView is the UI surface the handler drives.
type CallbackView interface {
	ShowError(message string)
	Navigate(route string)
}

// CallbackHandler processes the return from the identity provider. A
// handler instance represents one arrival at the callback route: Handle
// acts once and later calls return the first decision without side effects.
type CallbackHandler struct {
	auth    Authenticator
	delay   time.Duration
	landing string
	login   string
	logger  Logger

	once     sync.Once
	decision CallbackDecision
}

// CallbackOption customizes a CallbackHandler.
type CallbackOption func(*CallbackHandler)

// WithCallbackDelay sets how long errors stay visible before the redirect
// to the login route.
func WithCallbackDelay(d time.Duration) CallbackOption {
	return func(h *CallbackHandler) {
		if d >= 0 {
			h.delay = d
		}
	}
}

// WithCallbackRoutes overrides the landing and login routes.
func WithCallbackRoutes(landing, login string) CallbackOption {
	return func(h *CallbackHandler) {
		if landing != "" {
			h.landing = landing
		}
		if login != "" {
			h.login = login
		}
	}
}

// WithCallbackLogger sets the logger.
func WithCallbackLogger(l Logger) CallbackOption {
	return func(h *CallbackHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewCallbackHandler creates a handler for a single callback arrival.
func NewCallbackHandler(auth Authenticator, opts ...CallbackOption) *CallbackHandler {
	h := &CallbackHandler{
		auth:    auth,
		delay:   DefaultCallbackDelay,
		landing: DefaultLandingRoute,
		login:   DefaultLoginRoute,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Decide classifies the callback parameters without side effects.
func (h *CallbackHandler) Decide(params url.Values) CallbackDecision {
	if errParam := strings.TrimSpace(params.Get(ParamError)); errParam != "" {
		msg := strings.TrimSpace(params.Get(ParamErrorDescription))
		if msg == "" {
			msg = errParam
		}
		return CallbackDecision{
			Outcome:  CallbackError,
			Message:  msg,
			Redirect: h.login,
			Delay:    h.delay,
		}
	}

	token := strings.TrimSpace(params.Get(ParamToken))
	if token == "" {
		return CallbackDecision{
			Outcome:  CallbackNoToken,
			Message:  msgNoToken,
			Redirect: h.login,
			Delay:    h.delay,
		}
	}

	return CallbackDecision{
		Outcome:  CallbackToken,
		Token:    token,
		Redirect: h.landing,
	}
}

// Handle acts on the callback parameters once.
//
// A token is handed to the session with LoginAsync and the view navigates
// to the landing route right away; the session's Checking state covers
// the resolution. Errors are shown and the view navigates to the login
// route after the configured delay. ctx is the lifetime of the view:
// cancelling it before the delay elapses voids the pending redirect.
func (h *CallbackHandler) Handle(ctx context.Context, params url.Values, view CallbackView) CallbackDecision {
	h.once.Do(func() {
		h.decision = h.Decide(params)
		h.act(ctx, view)
	})
	return h.decision
}

func (h *CallbackHandler) act(ctx context.Context, view CallbackView) {
	d := h.decision

	if d.Outcome == CallbackToken {
		if h.auth != nil {
			// resolution must outlive the callback view
			h.auth.LoginAsync(context.WithoutCancel(ctx), d.Token)
		}
		h.logger.Info("callback received token, navigating", "route", d.Redirect)
		view.Navigate(d.Redirect)
		return
	}

	h.logger.Warn("callback without token", "outcome", d.Outcome, "message", d.Message)
	view.ShowError(d.Message)
	h.scheduleRedirect(ctx, view, d.Redirect, d.Delay)
}

func (h *CallbackHandler) scheduleRedirect(ctx context.Context, view CallbackView, route string, delay time.Duration) {
	if ctx.Err() != nil {
		return
	}

	var (
		mu    sync.Mutex
		done  bool
		timer *time.Timer
	)

	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if !done {
			done = true
			if timer != nil {
				timer.Stop()
			}
		}
	})

	mu.Lock()
	defer mu.Unlock()
	timer = time.AfterFunc(delay, func() {
		mu.Lock()
		defer mu.Unlock()
		if done || ctx.Err() != nil {
			return
		}
		done = true
		stop()
		view.Navigate(route)
	})
}
