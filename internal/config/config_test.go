package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calls"},
		Auth:   AuthConfig{JWTSecret: "secret", AdminUsername: "admin", AdminPassword: "admin"},
		OpenAI: OpenAIConfig{APIKey: "sk-test", Timeout: time.Minute},
		Voximplant: VoximplantConfig{
			Timeout:       30 * time.Second,
			RatePerSecond: 5,
		},
		Pipeline: PipelineConfig{Workers: 2, QueueSize: 16, StepDelay: time.Second, StaleAfter: 30 * time.Minute},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET", "ADMIN_USERNAME", "OPENAI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.OpenAI.Model != defaultOpenAIModel {
		t.Fatalf("expected default model, got %q", c.OpenAI.Model)
	}
	if c.Voximplant.BaseURL != defaultVoximplantBaseURL {
		t.Fatalf("expected default voximplant url, got %q", c.Voximplant.BaseURL)
	}
	if c.Pipeline.SweepSchedule != defaultSweepSchedule {
		t.Fatalf("expected default sweep schedule, got %q", c.Pipeline.SweepSchedule)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected default access ttl, got %v", c.Auth.AccessTokenTTL)
	}
	if c.Voximplant.Enabled() {
		t.Fatalf("expected voximplant disabled without credentials")
	}
	if c.RedisEnabled() {
		t.Fatalf("expected redis disabled without host")
	}
}

func TestValidate_ProductionRequiresProviderAndSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error in production")
	}
	if !strings.Contains(err.Error(), "DB_SSLMODE") || !strings.Contains(err.Error(), "VOXIMPLANT") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "calls")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("PIPELINE_STEP_DELAY", "0s")
	t.Setenv("STALE_CALL_AFTER", "0")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9000" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
	if c.Pipeline.StepDelay != 0 || c.Pipeline.StaleAfter != 0 {
		t.Fatalf("expected zero pacing and sweeper, got %+v", c.Pipeline)
	}
	if c.Voximplant.WebhookURL != "https://hooks.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.Voximplant.WebhookURL)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("OPENAI_TIMEOUT", "soon")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OPENAI_TIMEOUT") {
		t.Fatalf("expected duration error, got %v", err)
	}
}
