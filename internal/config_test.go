package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/notetaker/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	for _, cfg := range []AuthConfig{
		{Mode: "token", Token: "inline"},
		{Mode: "token", TokenFile: "/run/session/token"},
	} {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%+v should pass: %v", cfg, err)
		}
		if !cfg.AuthEnabled() {
			t.Error("token mode should be enabled")
		}
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestServerAuthConfig(t *testing.T) {
	if err := (&ServerAuthConfig{Mode: "jwt"}).Validate(); err == nil {
		t.Error("jwt mode without secret should fail")
	}
	if err := (&ServerAuthConfig{Mode: "jwt", Secret: "s"}).Validate(); err != nil {
		t.Errorf("jwt mode with secret should pass: %v", err)
	}
	if err := (&ServerAuthConfig{Mode: "token"}).Validate(); err == nil {
		t.Error("client-only mode should be rejected on the server")
	}
}

func TestBackendConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  BackendConfig
		ok   bool
	}{
		{"http endpoint", BackendConfig{Endpoint: "https://api.example.com/graphql", Timeout: time.Second}, true},
		{"missing endpoint", BackendConfig{Timeout: time.Second}, false},
		{"ws endpoint for queries", BackendConfig{Endpoint: "ws://x/graphql", Timeout: time.Second}, false},
		{"http realtime endpoint", BackendConfig{Endpoint: "http://x/graphql", RealtimeEndpoint: "http://x/rt", Timeout: time.Second}, false},
		{"tiny timeout", BackendConfig{Endpoint: "http://x/graphql", Timeout: time.Millisecond}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestBackendConfig_RealtimeURL(t *testing.T) {
	tests := []struct {
		cfg  BackendConfig
		want string
	}{
		{BackendConfig{Endpoint: "http://localhost:8080/graphql"}, "ws://localhost:8080/graphql/realtime"},
		{BackendConfig{Endpoint: "https://api.example.com/graphql"}, "wss://api.example.com/graphql/realtime"},
		{BackendConfig{Endpoint: "https://a/graphql", RealtimeEndpoint: "wss://b/events"}, "wss://b/events"},
	}
	for _, tt := range tests {
		if got := tt.cfg.RealtimeURL(); got != tt.want {
			t.Errorf("RealtimeURL(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestLoadFromYAMLWithEnv(t *testing.T) {
	t.Setenv("NOTETAKER_TEST_SECRET", "from-env")

	file := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  log_file: /tmp/notetaker.log
backend:
  endpoint: https://notes.example.com/graphql
  timeout: 5s
server:
  http:
    port: 9090
  sqlite:
    path: ./test.db
  auth:
    mode: jwt
    secret: ${NOTETAKER_TEST_SECRET}
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(file, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Auth.Secret != "from-env" {
		t.Errorf("secret = %q, want expanded env", cfg.Server.Auth.Secret)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Server.HTTP.Address() != ":9090" {
		t.Errorf("address = %q", cfg.Server.HTTP.Address())
	}
	if cfg.Auth.Mode != AuthModeDisabled {
		t.Errorf("auth mode = %q, want default", cfg.Auth.Mode)
	}
	if cfg.Server.MaxNoteLength != 10000 {
		t.Errorf("max note length = %d, want default", cfg.Server.MaxNoteLength)
	}
}
