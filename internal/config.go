package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/docreg/internal/registry"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var extensionRe = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Registry RegistryConfig    `yaml:"registry"`
	Index    IndexConfig       `yaml:"index"`
	Watch    WatchConfig       `yaml:"watch"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RegistryConfig controls how the document tree is loaded.
type RegistryConfig struct {
	Root          string        `yaml:"root"`
	Extensions    []string      `yaml:"extensions"`
	Ignore        []string      `yaml:"ignore"`
	Workers       int           `yaml:"workers"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
	RefreshPolicy string        `yaml:"refresh_policy"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	if c.RefreshPolicy == "" {
		c.RefreshPolicy = string(registry.RefreshQueue)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.LoadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshPolicy, validation.In(string(registry.RefreshQueue), string(registry.RefreshReject))),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.Match(extensionRe))),
	)
}

// Options converts the configuration into registry options.
func (c *RegistryConfig) Options() []registry.Option {
	opts := []registry.Option{
		registry.WithRoot(c.Root),
		registry.WithIgnore(c.Ignore...),
		registry.WithWorkers(c.Workers),
		registry.WithLoadTimeout(c.LoadTimeout),
		registry.WithRefreshPolicy(registry.RefreshPolicy(c.RefreshPolicy)),
	}
	if len(c.Extensions) > 0 {
		opts = append(opts, registry.WithExtensions(c.Extensions...))
	}
	return opts
}

// IndexConfig holds the SQLite mirror configuration.
type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// WatchConfig controls the filesystem watcher used by serve.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Registry: RegistryConfig{
			Root:          "./docs",
			Extensions:    []string{".md", ".markdown"},
			Ignore:        []string{"**/node_modules/**", "**/.git/**"},
			Workers:       runtime.GOMAXPROCS(0),
			LoadTimeout:   30 * time.Second,
			RefreshPolicy: string(registry.RefreshQueue),
		},
		Index: IndexConfig{
			Enabled: false,
			Path:    "./docreg.db",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
