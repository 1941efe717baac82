package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notetaker/internal/api"
)

// Client auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var (
	httpURL = regexp.MustCompile(`^https?://`)
	wsURL   = regexp.MustCompile(`^wss?://`)
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Backend BackendConfig     `yaml:"backend"`
	Auth    AuthConfig        `yaml:"auth"`
	Server  ServerConfig      `yaml:"server"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile receives the logs of the terminal UI, which owns stdout.
	LogFile string `yaml:"log_file"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFile, validation.Required),
	)
}

// BackendConfig locates the notes service.
type BackendConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	RealtimeEndpoint string        `yaml:"realtime_endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required, validation.Match(httpURL)),
		validation.Field(&c.RealtimeEndpoint, validation.Match(wsURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// RealtimeURL returns the subscription endpoint. Without an explicit one it
// is derived from Endpoint: same host, ws scheme, "/realtime" appended.
func (c *BackendConfig) RealtimeURL() string {
	if c.RealtimeEndpoint != "" {
		return c.RealtimeEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path.Join(u.Path, "realtime")
	return u.String()
}

// AuthConfig holds the client's credentials.
//
// Mode controls how the client authenticates:
//   - "disabled" (default): no token is sent, for a local backend without auth.
//   - "token": a bearer token, given inline or read from TokenFile. A token
//     file is watched and reloaded whenever the sign-in flow rewrites it.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" && c.TokenFile == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when a token is sent.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ServerConfig configures the local backend.
type ServerConfig struct {
	HTTP          HTTPConfig       `yaml:"http"`
	SQLite        SQLiteConfig     `yaml:"sqlite"`
	Auth          ServerAuthConfig `yaml:"auth"`
	MaxNoteLength int              `yaml:"max_note_length"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxNoteLength, validation.Min(0)),
	)
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ServerAuthConfig controls how the local backend authenticates callers.
//
//   - "disabled" (default): every caller shares the anonymous notes.
//   - "jwt": HS256 bearer tokens signed with Secret; the subject owns the notes.
type ServerAuthConfig struct {
	Mode   string `yaml:"mode"`
	Secret string `yaml:"secret"`
}

// Validate validates the server auth configuration.
func (c *ServerAuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = api.AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(api.AuthModeDisabled, api.AuthModeJWT)),
	); err != nil {
		return err
	}
	if c.Mode == api.AuthModeJWT && c.Secret == "" {
		return fmt.Errorf("auth: mode is %q but secret is empty", api.AuthModeJWT)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile:  "./notetaker.log",
		},
		Backend: BackendConfig{
			Endpoint: "http://localhost:8080/graphql",
			Timeout:  15 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Port: 8080,
			},
			SQLite: SQLiteConfig{
				Path: "./notetaker.db",
			},
			Auth: ServerAuthConfig{
				Mode: api.AuthModeDisabled,
			},
			MaxNoteLength: 10000,
		},
	}
}
