package config

import "testing"

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "softphone", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "softphone", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Telnyx.APIBaseURL != "https://api.telnyx.com/v2" {
		t.Fatalf("expected telnyx base url default, got %q", c.Telnyx.APIBaseURL)
	}
	if c.Telnyx.WebhookBaseURL == "" {
		t.Fatalf("expected webhook base url default")
	}
}

func TestValidate_AllowsMissingTelnyxKey(t *testing.T) {
	// Provider credentials are optional at startup; the process degrades
	// to history/contacts only and logs a warning.
	c := Config{
		App:   AppConfig{Env: "dev", Port: 5000},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "softphone"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWebhookURL(t *testing.T) {
	c := Config{Telnyx: TelnyxConfig{WebhookBaseURL: "https://dialer.example.com/"}}
	if got := c.WebhookURL(); got != "https://dialer.example.com/api/webhooks/telnyx" {
		t.Fatalf("unexpected webhook url: %q", got)
	}
}
