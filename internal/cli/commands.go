package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/web"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the portal command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	app := &App{Prompter: FormPrompter{}}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}

	var debug bool

	root := &cobra.Command{
		Use:   "portal",
		Short: "Onboarding portal authentication client",
		Long: `portal signs you in to the onboarding portal and keeps the session token.

The token is stored in the credential store selected by PORTAL_STORE
(file, sqlite, redis or memory) and validated against the backend on
every command that needs it.

Examples:
  portal login --email user@example.com
  portal login --openid
  portal whoami
  portal logout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.Out = cmd.OutOrStdout()
			return app.init(cmd.Context(), debug)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "Log requests and session events")

	root.AddCommand(
		newLoginCmd(app),
		newRegisterCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newCallbackCmd(app),
		newHealthCmd(app),
		newServeCmd(app),
	)

	return root
}

// ExecuteContext runs the command tree with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newLoginCmd(app *App) *cobra.Command {
	var (
		email    string
		password string
		openid   bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password or OpenID",
		Long: `Sign in to the portal.

Without --openid the email and password are taken from the flags or
prompted for. With --openid a local callback server is started on
PORTAL_CALLBACK_ADDR and the identity provider URL is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Manager.Bootstrap(cmd.Context()); err == nil && app.Manager.IsAuthenticated() {
				fmt.Fprintln(app.Out, "Already logged in.")
				printProfile(app.Out, app.Manager.Snapshot(), "")
				return nil
			}

			if openid {
				return runOpenIDLogin(cmd.Context(), app, timeout)
			}

			form, err := app.Prompter.Credentials(authclient.ModeLogin, authclient.LocalForm{
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}

			submitter := authclient.NewLocalSubmitter(app.API, app.Manager,
				authclient.WithLocalLogger(app.Logger.GetLogger("form")),
			)

			if _, err := submitter.Submit(cmd.Context(), form); err != nil {
				printError(app.Out, authclient.UserMessage(err, "Failed to login"))
				return err
			}

			printProfile(app.Out, app.Manager.Snapshot(), "")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.Flags().BoolVar(&openid, "openid", false, "Sign in through the OpenID provider")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the OpenID callback")

	return cmd
}

func runOpenIDLogin(ctx context.Context, app *App, timeout time.Duration) error {
	ctrl := web.NewController(app.API, app.Manager,
		web.WithConfig(app.Config),
		web.WithLogger(app.Logger.GetLogger("web")),
		web.WithRedirector(authclient.RedirectorFunc(func(_ context.Context, authURL string) error {
			fmt.Fprintln(app.Out, titleStyle.Render("Open this URL in your browser to sign in:"))
			fmt.Fprintln(app.Out, authURL)
			return nil
		})),
	)

	if !ctrl.OpenID.Enabled() {
		err := errors.New("OpenID Client ID is not configured")
		printError(app.Out, err.Error())
		return err
	}

	srv, err := web.NewServer(ctrl)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(app.Config.CallbackAddr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	outcome, unsubscribe := awaitResolution(app.Manager)
	defer unsubscribe()

	if _, err := ctrl.OpenID.Begin(ctx); err != nil {
		printError(app.Out, authclient.UserMessage(err, "Failed to start OpenID login"))
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case evt := <-outcome:
		return reportResolution(app, evt)
	case err := <-serveErr:
		if err == nil {
			err = errors.New("callback server stopped")
		}
		return fmt.Errorf("callback server: %w", err)
	case <-timer.C:
		return errors.New("timed out waiting for the OpenID callback")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newRegisterCmd(app *App) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a local account",
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := app.Prompter.Credentials(authclient.ModeRegister, authclient.LocalForm{
				Email:    email,
				Password: password,
				Name:     name,
			})
			if err != nil {
				return err
			}

			submitter := authclient.NewLocalSubmitter(app.API, app.Manager,
				authclient.WithLocalLogger(app.Logger.GetLogger("form")),
			)
			submitter.SetMode(authclient.ModeRegister)

			res, err := submitter.Submit(cmd.Context(), form)
			if err != nil {
				printError(app.Out, authclient.UserMessage(err, "Failed to register"))
				return err
			}

			fmt.Fprintln(app.Out, res.Message)
			fmt.Fprintln(app.Out, mutedStyle.Render("Use 'portal login' to sign in."))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password, at least 8 characters")
	cmd.Flags().StringVar(&name, "name", "", "Full name")

	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := app.Store.Get(cmd.Context())
			if err == nil && token == "" {
				fmt.Fprintln(app.Out, "Not logged in.")
				return nil
			}

			app.Manager.Logout(cmd.Context())
			fmt.Fprintln(app.Out, "Logged out successfully.")
			return nil
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	var withHealth bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			err := app.Manager.Bootstrap(ctx)
			s := app.Manager.Snapshot()

			switch {
			case s.IsAuthenticated():
				health := ""
				if withHealth {
					health = checkHealth(ctx, app)
				}
				printProfile(app.Out, s, health)
				return nil

			case s.HasToken():
				printError(app.Out, authclient.UserMessage(s.Err, "Could not verify your session"))
				fmt.Fprintln(app.Out, mutedStyle.Render("Your session was kept, try again later."))
				return err

			case authclient.IsInvalidToken(err):
				fmt.Fprintln(app.Out, "Session expired, please login again.")
				return nil
			}

			if err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Not logged in.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withHealth, "health", false, "Also report the backend health")

	return cmd
}

func newCallbackCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "callback <url>",
		Short: "Complete an OpenID sign in from a callback URL",
		Long: `Complete an OpenID sign in from the URL the identity provider redirected
the browser to, e.g. "http://127.0.0.1:5173/auth/callback?token=...".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid callback url: %w", err)
			}

			ctx := cmd.Context()
			outcome, unsubscribe := awaitResolution(app.Manager)
			defer unsubscribe()

			view := newTerminalView(app)
			h := authclient.NewCallbackHandler(app.Manager,
				authclient.WithCallbackDelay(app.Config.CallbackDelay),
				authclient.WithCallbackLogger(app.Logger.GetLogger("callback")),
			)
			decision := h.Handle(ctx, u.Query(), view)

			if decision.Outcome != authclient.CallbackToken {
				select {
				case <-view.navigated:
				case <-ctx.Done():
				}
				return errors.New(decision.Message)
			}

			select {
			case evt := <-outcome:
				return reportResolution(app, evt)
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := authclient.NewHealthChecker(app.API).Check(cmd.Context())
			if err != nil {
				printError(app.Out, authclient.UserMessage(err, "Backend unavailable"))
				return err
			}
			fmt.Fprintln(app.Out, status)
			return nil
		},
	}
}

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the portal pages on PORTAL_CALLBACK_ADDR",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Manager.Bootstrap(ctx); err != nil {
				app.Logger.GetLogger("session").Warn("bootstrap failed", "error", err)
			}

			srv, err := web.NewServer(web.NewController(app.API, app.Manager,
				web.WithConfig(app.Config),
				web.WithLogger(app.Logger.GetLogger("web")),
			))
			if err != nil {
				return err
			}

			serveErr := make(chan error, 1)
			go func() {
				serveErr <- srv.Serve(app.Config.CallbackAddr)
			}()

			fmt.Fprintf(app.Out, "Portal listening on http://%s\n", app.Config.CallbackAddr)

			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

// awaitResolution delivers the first event that ends a token check.
func awaitResolution(m *authclient.Manager) (<-chan authclient.SessionEvent, func()) {
	out := make(chan authclient.SessionEvent, 1)
	unsubscribe := m.Subscribe(func(evt authclient.SessionEvent) {
		switch evt.Type {
		case authclient.EventResolved, authclient.EventEvicted, authclient.EventResolveFailed:
			select {
			case out <- evt:
			default:
			}
		}
	})
	return out, unsubscribe
}

func reportResolution(app *App, evt authclient.SessionEvent) error {
	if evt.Type == authclient.EventResolved {
		printProfile(app.Out, evt.Session, "")
		return nil
	}
	printError(app.Out, authclient.UserMessage(evt.Err, "Login failed"))
	return evt.Err
}

func checkHealth(ctx context.Context, app *App) string {
	status, err := authclient.NewHealthChecker(app.API).Check(ctx)
	if err != nil {
		return "unavailable"
	}
	return status
}

// terminalView renders callback outcomes on the terminal.
type terminalView struct {
	app       *App
	navigated chan string
}

func newTerminalView(app *App) *terminalView {
	return &terminalView{app: app, navigated: make(chan string, 1)}
}

func (v *terminalView) ShowError(message string) {
	printError(v.app.Out, "Authentication Error: "+message)
}

func (v *terminalView) Navigate(route string) {
	fmt.Fprintln(v.app.Out, mutedStyle.Render("-> "+route))
	select {
	case v.navigated <- route:
	default:
	}
}
