package web

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-router"
)

// Routes are the paths served by the portal pages.
type Routes struct {
	Home     string
	Login    string
	Register string
	Logout   string
	Retry    string
	OpenID   string
	Callback string
}

// Views are the template names rendered by the controller.
type Views struct {
	Home     string
	Checking string
	Login    string
	Callback string
}

// Controller serves the portal pages on top of a session Manager.
type Controller struct {
	Debug    bool
	Logger   authclient.Logger
	Config   authclient.Config
	API      *authclient.APIClient
	Manager  *authclient.Manager
	OpenID   *authclient.OpenIDInitiator
	Health   *authclient.HealthChecker
	Routes   *Routes
	Views    *Views
	Redirect authclient.Redirector
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller) *Controller

// WithLogger sets the controller logger.
func WithLogger(l authclient.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

// WithConfig sets the client configuration used for the OpenID client id
// and the callback delay.
func WithConfig(cfg authclient.Config) ControllerOption {
	return func(c *Controller) *Controller {
		c.Config = cfg
		return c
	}
}

// WithRoutes overrides the default routes.
func WithRoutes(r *Routes) ControllerOption {
	return func(c *Controller) *Controller {
		if r != nil {
			c.Routes = r
		}
		return c
	}
}

// WithRedirector is notified with the authorization URL whenever the OpenID
// flow starts. The browser is redirected regardless.
func WithRedirector(r authclient.Redirector) ControllerOption {
	return func(c *Controller) *Controller {
		c.Redirect = r
		return c
	}
}

// NewController creates the page controller. It panics when the API client
// or the Manager are missing.
func NewController(api *authclient.APIClient, m *authclient.Manager, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:  authclient.NoopLogger(),
		Config:  authclient.DefaultConfig(),
		API:     api,
		Manager: m,
		Routes: &Routes{
			Home:     authclient.DefaultLandingRoute,
			Login:    authclient.DefaultLoginRoute,
			Register: "/register",
			Logout:   "/logout",
			Retry:    "/retry",
			OpenID:   "/auth/openid",
			Callback: "/auth/callback",
		},
		Views: &Views{
			Home:     "home",
			Checking: "checking",
			Login:    "login",
			Callback: "callback",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.API == nil {
		panic("Missing APIClient in portal controller...")
	}

	if c.Manager == nil {
		panic("Missing session Manager in portal controller...")
	}

	c.Debug = c.Config.Debug
	c.Health = authclient.NewHealthChecker(c.API)
	c.OpenID = authclient.NewOpenIDInitiator(c.API, c.Config.OpenIDClientID, c.Redirect,
		authclient.WithOpenIDLogger(c.Logger),
	)

	return c
}

// RegisterRoutes mounts the portal pages on app.
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get(c.Routes.Home, c.HomeShow).SetName("home.get")
	app.Post(c.Routes.Retry, RequireSession(c.Routes.Login)(c.Retry)).SetName("session-retry.post")

	app.Get(c.Routes.Login, c.LoginShow).SetName("sign-in.get")
	app.Post(c.Routes.Login, c.LoginPost).SetName("sign-in.post")

	app.Get(c.Routes.Register, c.RegistrationShow).SetName("register.get")
	app.Post(c.Routes.Register, c.RegistrationCreate).SetName("register.post")

	app.Get(c.Routes.Logout, c.LogOut).SetName("sign-out.get")
	app.Post(c.Routes.Logout, c.LogOut).SetName("sign-out.post")

	app.Get(c.Routes.OpenID, c.OpenIDBegin).SetName("openid.get")
	app.Get(c.Routes.Callback, c.Callback).SetName("openid-callback.get")
}

func (c *Controller) session(ctx router.Context) authclient.Session {
	if s, ok := authclient.SessionFromContext(ctx.Context()); ok {
		return s
	}
	return c.Manager.Snapshot()
}

// HomeShow is the route gate: it renders the landing page for an
// authenticated session, a progress page while the token is checked and
// sends everyone else to the login page.
func (c *Controller) HomeShow(ctx router.Context) error {
	s := c.session(ctx)

	switch s.Status {
	case authclient.StatusAuthenticated:
		health, err := c.Health.Check(ctx.Context())
		if err != nil {
			c.Logger.Warn("health check failed", "error", err)
			health = "unavailable"
		}

		data := c.viewData(s)
		data["health"] = health
		if exp, ok := authclient.TokenExpiry(s.Token); ok {
			data["expires_at"] = exp.Format("2006-01-02 15:04 MST")
		}
		return ctx.Render(c.Views.Home, data)

	case authclient.StatusChecking:
		data := c.viewData(s)
		if s.Err != nil {
			data["error"] = authclient.UserMessage(s.Err, "Could not verify your session")
		}
		return ctx.Render(c.Views.Checking, data)
	}

	return ctx.Redirect(c.Routes.Login, router.StatusSeeOther)
}

// Retry re-validates a kept token after a failed check.
func (c *Controller) Retry(ctx router.Context) error {
	if err := c.Manager.Retry(ctx.Context()); err != nil {
		c.Logger.Info("session retry failed", "error", err)
	}
	return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
}

// FormPayload is the local login and register form.
type FormPayload struct {
	Mode     string `form:"mode" json:"mode"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Name     string `form:"name" json:"name"`
}

func (c *Controller) LoginShow(ctx router.Context) error {
	if c.session(ctx).IsAuthenticated() {
		return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
	}

	mode := authclient.ModeLogin
	if ctx.Query("mode", "") == string(authclient.ModeRegister) {
		mode = authclient.ModeRegister
	}

	return c.renderLogin(ctx, mode, router.ViewContext{})
}

func (c *Controller) RegistrationShow(ctx router.Context) error {
	return ctx.Redirect(c.Routes.Login+"?mode="+string(authclient.ModeRegister), router.StatusSeeOther)
}

func (c *Controller) LoginPost(ctx router.Context) error {
	return c.submit(ctx, "")
}

func (c *Controller) RegistrationCreate(ctx router.Context) error {
	return c.submit(ctx, authclient.ModeRegister)
}

func (c *Controller) submit(ctx router.Context, forced authclient.FormMode) error {
	payload := new(FormPayload)
	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("login form parse payload", "error", err)
		return c.renderLogin(ctx, authclient.ModeLogin, router.ViewContext{
			"error": "Failed to parse form",
		})
	}

	mode := authclient.FormMode(payload.Mode)
	if forced != "" {
		mode = forced
	}

	submitter := authclient.NewLocalSubmitter(c.API, c.Manager, authclient.WithLocalLogger(c.Logger))
	submitter.SetMode(mode)
	mode = submitter.Mode()

	res, err := submitter.Submit(ctx.Context(), authclient.LocalForm{
		Email:    payload.Email,
		Password: payload.Password,
		Name:     payload.Name,
	})

	if err != nil {
		fallback := "Failed to login"
		if mode == authclient.ModeRegister {
			fallback = "Failed to register"
		}
		if authclient.IsValidationError(err) && authclient.FieldErrors(err) != nil {
			fallback = "Please check the highlighted fields"
		}
		return c.renderLogin(ctx, mode, router.ViewContext{
			"error":      authclient.UserMessage(err, fallback),
			"validation": authclient.FieldErrors(err),
			"record": router.ViewContext{
				"email": payload.Email,
				"name":  payload.Name,
			},
		})
	}

	if res.Mode == authclient.ModeLogin && !res.LoggedIn {
		return c.renderLogin(ctx, authclient.ModeLogin, router.ViewContext{
			"message": res.Message,
		})
	}

	return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
}

func (c *Controller) renderLogin(ctx router.Context, mode authclient.FormMode, data router.ViewContext) error {
	view := c.viewData(c.session(ctx))
	for k, v := range data {
		view[k] = v
	}
	view["mode"] = string(mode)
	view["is_register"] = mode == authclient.ModeRegister
	view["openid_enabled"] = c.OpenID.Enabled()
	return ctx.Render(c.Views.Login, view)
}

func (c *Controller) LogOut(ctx router.Context) error {
	c.Manager.Logout(ctx.Context())
	return ctx.Redirect(c.Routes.Login, router.StatusSeeOther)
}

// OpenIDBegin redirects the browser to the identity provider.
func (c *Controller) OpenIDBegin(ctx router.Context) error {
	authURL, err := c.OpenID.Begin(ctx.Context())
	if err != nil {
		return c.renderLogin(ctx, authclient.ModeLogin, router.ViewContext{
			"error": authclient.UserMessage(err, "Failed to start OpenID login"),
		})
	}
	return ctx.Redirect(authURL, router.StatusSeeOther)
}

// Callback handles the redirect back from the identity provider. A token
// sends the browser to the landing page right away; errors are shown for
// the configured delay before the page refreshes to the login route.
func (c *Controller) Callback(ctx router.Context) error {
	params := url.Values{}
	for _, key := range []string{authclient.ParamToken, authclient.ParamError, authclient.ParamErrorDescription} {
		if v := ctx.Query(key, ""); v != "" {
			params.Set(key, v)
		}
	}

	// the request is the lifetime of the view; the page refresh replaces
	// the pending timer once it returns
	viewCtx, cancel := context.WithCancel(ctx.Context())
	defer cancel()

	view := &pageView{}
	handler := authclient.NewCallbackHandler(c.Manager,
		authclient.WithCallbackDelay(c.Config.CallbackDelay),
		authclient.WithCallbackRoutes(c.Routes.Home, c.Routes.Login),
		authclient.WithCallbackLogger(c.Logger),
	)
	decision := handler.Handle(viewCtx, params, view)

	if route, ok := view.navigated(); ok {
		return ctx.Redirect(route, router.StatusSeeOther)
	}

	return ctx.Render(c.Views.Callback, router.ViewContext{
		"error":         view.message(),
		"redirect":      decision.Redirect,
		"delay_seconds": strconv.Itoa(int(decision.Delay / time.Second)),
	})
}

func (c *Controller) viewData(s authclient.Session) router.ViewContext {
	data := router.ViewContext{
		"status":         string(s.DisplayStatus()),
		"authenticated":  s.IsAuthenticated(),
		"routes":         c.Routes,
		"openid_enabled": c.OpenID.Enabled(),
	}
	if s.Profile != nil {
		data["current_user"] = map[string]any{
			"subject":  s.Profile.Subject,
			"name":     s.Profile.Name(),
			"email":    s.Profile.Email,
			"initials": s.Profile.Initials(),
			"source":   string(s.Profile.AuthSource),
		}
	}
	return data
}

// pageView records what the callback handler asked of the page.
type pageView struct {
	mu     sync.Mutex
	errors []string
	route  string
}

func (v *pageView) ShowError(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, message)
}

func (v *pageView) Navigate(route string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.route == "" {
		v.route = route
	}
}

func (v *pageView) navigated() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.route, v.route != ""
}

func (v *pageView) message() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return strings.Join(v.errors, " ")
}
