package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/store"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"
)

// App wires the session stack for one CLI invocation.
type App struct {
	Config   authclient.Config
	Logger   *glog.BaseLogger
	Store    authclient.CredentialStore
	API      *authclient.APIClient
	Manager  *authclient.Manager
	Prompter Prompter
	Out      io.Writer

	closers []func() error
}

// Option customizes the App built by the root command.
type Option func(*App)

// WithConfig skips loading the configuration from the environment.
func WithConfig(cfg authclient.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithStore overrides the credential store selected by the configuration.
func WithStore(s authclient.CredentialStore) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithPrompter overrides the interactive prompter.
func WithPrompter(p Prompter) Option {
	return func(a *App) {
		if p != nil {
			a.Prompter = p
		}
	}
}

func newLogger(debug bool) *glog.BaseLogger {
	if debug {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("portal"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("portal"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

// init builds the stack. Missing pieces fall back to the configuration.
func (a *App) init(ctx context.Context, debug bool) error {
	if a.Config.BaseURL == "" {
		cfg, err := authclient.LoadConfig()
		if err != nil {
			return err
		}
		a.Config = cfg
	}
	if debug {
		a.Config.Debug = true
	}

	if a.Logger == nil {
		a.Logger = newLogger(a.Config.Debug)
	}

	if a.Store == nil {
		s, closer, err := OpenStore(ctx, a.Config)
		if err != nil {
			return err
		}
		a.Store = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	a.API = authclient.NewAPIClientFromConfig(a.Config, authclient.WithAPILogger(a.Logger.GetLogger("api")))
	resolver := authclient.NewHTTPProfileResolver(a.API, authclient.WithResolverLogger(a.Logger.GetLogger("resolver")))
	a.Manager = authclient.NewManager(a.Store, resolver,
		authclient.WithManagerLogger(a.Logger.GetLogger("session")),
		authclient.WithEventSink(authclient.EventSinkFunc(func(_ context.Context, evt authclient.SessionEvent) error {
			a.Logger.GetLogger("events").Debug("session event",
				"type", evt.Type, "from", evt.From, "to", evt.To, "id", evt.ID.String(),
			)
			return nil
		})),
	)

	return nil
}

// Close releases store connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// OpenStore returns the credential store selected by cfg.Store and an
// optional closer for its connection.
func OpenStore(ctx context.Context, cfg authclient.Config) (authclient.CredentialStore, func() error, error) {
	switch cfg.Store {
	case authclient.StoreMemory:
		return store.NewMemory(), nil, nil

	case authclient.StoreSQLite:
		path := cfg.StorePath
		if path == "" {
			def, err := defaultStorePath("credentials.db")
			if err != nil {
				return nil, nil, err
			}
			path = def
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
		db, err := store.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewBun(db, cfg.StoreKey)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case authclient.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return store.NewRedis(client, cfg.StoreKey), client.Close, nil

	default:
		path := cfg.StorePath
		if path == "" {
			def, err := store.DefaultFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = def
		}
		return store.NewFile(path, cfg.StoreKey), nil, nil
	}
}

func defaultStorePath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "portal", name), nil
}
