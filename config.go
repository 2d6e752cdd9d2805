package authclient

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Store backends understood by Config.Store.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

const (
	DefaultBaseURL       = "http://localhost:8080/api"
	DefaultTimeout       = 10 * time.Second
	DefaultCallbackDelay = 3 * time.Second
	DefaultStoreKey      = "token"
	DefaultCallbackAddr  = "127.0.0.1:5173"
	DefaultLandingRoute  = "/"
	DefaultLoginRoute    = "/login"
)

// Config holds the environment level client configuration.
type Config struct {
	BaseURL        string        `env:"PORTAL_API_URL" envDefault:"http://localhost:8080/api"`
	OpenIDClientID string        `env:"PORTAL_OPENID_CLIENT_ID"`
	Timeout        time.Duration `env:"PORTAL_TIMEOUT" envDefault:"10s"`
	CallbackDelay  time.Duration `env:"PORTAL_CALLBACK_DELAY" envDefault:"3s"`
	CallbackAddr   string        `env:"PORTAL_CALLBACK_ADDR" envDefault:"127.0.0.1:5173"`
	Store          string        `env:"PORTAL_STORE" envDefault:"file"`
	StorePath      string        `env:"PORTAL_STORE_PATH"`
	StoreKey       string        `env:"PORTAL_STORE_KEY" envDefault:"token"`
	RedisAddr      string        `env:"PORTAL_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Debug          bool          `env:"PORTAL_DEBUG"`
}

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		CallbackDelay: DefaultCallbackDelay,
		CallbackAddr:  DefaultCallbackAddr,
		Store:         StoreFile,
		StoreKey:      DefaultStoreKey,
		RedisAddr:     "127.0.0.1:6379",
	}
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(nil)
}

// LoadConfigFrom reads the configuration from the given environment map,
// falling back to the process environment when environ is nil.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	cfg := Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse client configuration").
			WithTextCode(TextCodeConfig)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// OpenIDEnabled reports whether the OpenID action is available.
func (c Config) OpenIDEnabled() bool {
	return strings.TrimSpace(c.OpenIDClientID) != ""
}

// Validate will run validation rules
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CallbackDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.StoreKey, validation.Required),
		validation.Field(&c.Store, validation.In(StoreFile, StoreSQLite, StoreRedis, StoreMemory)),
	)
	if err != nil {
		return newError(ErrConfig, err, map[string]any{
			"fields": validationFields(err),
		})
	}

	if u, perr := url.Parse(c.BaseURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return newError(ErrConfig, perr, map[string]any{
			"fields": map[string]string{"BaseURL": "must be an absolute URL"},
		})
	}

	return nil
}

func validationFields(err error) map[string]string {
	fields := map[string]string{}
	if errs, ok := err.(validation.Errors); ok {
		for name, ferr := range errs {
			fields[name] = ferr.Error()
		}
	}
	return fields
}
