// Package config loads blogctl settings. Values come from defaults, then an
// optional YAML file, then BLOGCTL_ prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const (
	AppName   = "blogctl"
	EnvPrefix = "BLOGCTL_"
)

var routePath = regexp.MustCompile(`^/`)

// Routes are the frontend paths used for redirects
type Routes struct {
	Home        string `yaml:"home" env:"HOME"`
	Login       string `yaml:"login" env:"LOGIN"`
	AdminLogin  string `yaml:"admin_login" env:"ADMIN_LOGIN"`
	AdminPrefix string `yaml:"admin_prefix" env:"ADMIN_PREFIX"`
}

// StubBackend configures the local development backend
type StubBackend struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Secret   string        `yaml:"secret" env:"SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// Config holds the client settings
type Config struct {
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	TokenPath      string        `yaml:"token_path" env:"TOKEN_PATH"`
	Debug          bool          `yaml:"debug" env:"DEBUG"`
	Routes         Routes        `yaml:"routes" envPrefix:"ROUTE_"`
	StubBackend    StubBackend   `yaml:"stub_backend" envPrefix:"STUB_"`
}

var _ auth.Config = (*Config)(nil)

// Defaults returns the configuration used when nothing overrides it
func Defaults() *Config {
	routes := auth.DefaultRoutes()
	tokenPath, err := auth.DefaultTokenPath(AppName)
	if err != nil {
		tokenPath = filepath.Join(".", AppName+"-session.json")
	}
	return &Config{
		BaseURL:        "http://localhost:8000/api",
		RequestTimeout: 20 * time.Second,
		TokenPath:      tokenPath,
		Routes: Routes{
			Home:        routes.Home,
			Login:       routes.Login,
			AdminLogin:  routes.AdminLogin,
			AdminPrefix: routes.AdminPrefix,
		},
		StubBackend: StubBackend{
			Addr:     ":8000",
			TokenTTL: time.Hour,
		},
	}
}

// DefaultPath is the config file read when no path is given
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", AppName+".yaml")
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// Load reads path, if set, and the process environment
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ reads
// the process environment.
func LoadWithEnv(path string, environ map[string]string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "failed to parse environment variables")
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath() {
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to read config file").
			WithMetadata(map[string]any{"path": path})
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "failed to parse config file").
			WithMetadata(map[string]any{"path": path})
	}
	return nil
}

// Validate checks required fields and path shapes
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.RequestTimeout, validation.Required),
		validation.Field(&c.TokenPath, validation.Required),
	)
	if err == nil {
		err = validation.ValidateStruct(&c.Routes,
			validation.Field(&c.Routes.Home, validation.Required, validation.Match(routePath)),
			validation.Field(&c.Routes.Login, validation.Required, validation.Match(routePath)),
			validation.Field(&c.Routes.AdminLogin, validation.Required, validation.Match(routePath)),
			validation.Field(&c.Routes.AdminPrefix, validation.Required, validation.Match(routePath)),
		)
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid configuration")
	}
	return nil
}

func (c *Config) GetBaseURL() string {
	return c.BaseURL
}

func (c *Config) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

func (c *Config) GetTokenPath() string {
	return c.TokenPath
}

func (c *Config) GetLoginPath() string {
	return c.Routes.Login
}

func (c *Config) GetAdminLoginPath() string {
	return c.Routes.AdminLogin
}

func (c *Config) GetAdminPathPrefix() string {
	return c.Routes.AdminPrefix
}

func (c *Config) GetHomePath() string {
	return c.Routes.Home
}
