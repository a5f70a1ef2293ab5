package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		for _, key := range []string{"PORT", "JWT_EXPIRES_IN", "STARTING_BALANCE", "MAX_UPLOAD_MB", "MAIL_WORKERS", "OWNER_NICKNAME"} {
			t.Setenv(key, "")
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("expected port 8080, got %s", cfg.Port)
		}
		if cfg.JWTExpirationDur != 15*time.Minute {
			t.Errorf("expected 15m access token lifetime, got %s", cfg.JWTExpirationDur)
		}
		if cfg.StartingBalance.String() != "1000" {
			t.Errorf("expected starting balance 1000, got %s", cfg.StartingBalance)
		}
		if cfg.MaxUploadBytes != 16<<20 {
			t.Errorf("expected 16MB upload limit, got %d", cfg.MaxUploadBytes)
		}
		if cfg.MailWorkers != 2 {
			t.Errorf("expected 2 mail workers, got %d", cfg.MailWorkers)
		}
	})

	t.Run("reads environment", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("JWT_EXPIRES_IN", "1h")
		t.Setenv("STARTING_BALANCE", "2500.50")
		t.Setenv("OWNER_NICKNAME", "founder")
		t.Setenv("SLOW_REQUEST_THRESHOLD", "250ms")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != "9000" || cfg.OwnerNickname != "founder" {
			t.Errorf("unexpected config %+v", cfg)
		}
		if cfg.JWTExpirationDur != time.Hour {
			t.Errorf("expected 1h, got %s", cfg.JWTExpirationDur)
		}
		if cfg.StartingBalance.String() != "2500.5" {
			t.Errorf("expected 2500.5, got %s", cfg.StartingBalance)
		}
		if cfg.SlowRequestThreshold != 250*time.Millisecond {
			t.Errorf("expected 250ms, got %s", cfg.SlowRequestThreshold)
		}
		if Get() != cfg {
			t.Error("expected Get to return the last loaded config")
		}
	})

	t.Run("falls back on invalid values", func(t *testing.T) {
		t.Setenv("JWT_EXPIRES_IN", "soon")
		t.Setenv("STARTING_BALANCE", "lots")
		t.Setenv("SMTP_PORT", "abc")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.JWTExpirationDur != 15*time.Minute {
			t.Errorf("expected fallback 15m, got %s", cfg.JWTExpirationDur)
		}
		if cfg.StartingBalance.String() != "1000" {
			t.Errorf("expected fallback 1000, got %s", cfg.StartingBalance)
		}
		if cfg.SMTPPort != 587 {
			t.Errorf("expected fallback 587, got %d", cfg.SMTPPort)
		}
	})
}

func TestURLs(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}

	if got := cfg.DSN(); got != "host=db port=5432 user=u password=p dbname=n sslmode=disable" {
		t.Errorf("unexpected DSN %q", got)
	}
	if got := cfg.MigrateURL(); got != "postgres://u:p@db:5432/n?sslmode=disable" {
		t.Errorf("unexpected migrate URL %q", got)
	}
}
