package userauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test config valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "access ttl zero invalid",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "hs256 short key invalid",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "rs256 without keys invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
				c.JWT.PrivateKey = nil
			},
			wantValid: false,
		},
		{
			name: "unknown signing method invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "none"
			},
			wantValid: false,
		},
		{
			name: "audience blank invalid",
			mutate: func(c *Config) {
				c.JWT.Audience = ""
			},
			wantValid: false,
		},
		{
			name: "remember me shorter than refresh invalid",
			mutate: func(c *Config) {
				c.Refresh.RememberMeTTL = time.Hour
			},
			wantValid: false,
		},
		{
			name: "totp digits out of range invalid",
			mutate: func(c *Config) {
				c.TwoFactor.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "recovery code as long as totp invalid",
			mutate: func(c *Config) {
				c.TwoFactor.Digits = 8
				c.TwoFactor.RecoveryCodeLength = 8
			},
			wantValid: false,
		},
		{
			name: "totp sha256 valid",
			mutate: func(c *Config) {
				c.TwoFactor.Algorithm = "sha256"
			},
			wantValid: true,
		},
		{
			name: "two-factor attempts zero invalid",
			mutate: func(c *Config) {
				c.TwoFactor.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "lockout disabled ignores threshold",
			mutate: func(c *Config) {
				c.SignIn.LockoutEnabled = false
				c.SignIn.LockoutThreshold = 0
			},
			wantValid: true,
		},
		{
			name: "reset window zero invalid",
			mutate: func(c *Config) {
				c.PasswordReset.Window = 0
			},
			wantValid: false,
		},
		{
			name: "argon2 memory too low invalid",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "cookie without host prefix invalid",
			mutate: func(c *Config) {
				c.Cookie.AccessTokenName = "auth_token"
			},
			wantValid: false,
		},
		{
			name: "synchronous events need no buffer",
			mutate: func(c *Config) {
				c.Events.Synchronous = true
				c.Events.BufferSize = 0
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigOpenQuestionDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TwoFactor.MaxAttempts != 5 || cfg.TwoFactor.PendingTTL != 5*time.Minute {
		t.Fatalf("two-factor defaults = %d/%s, want 5/5m", cfg.TwoFactor.MaxAttempts, cfg.TwoFactor.PendingTTL)
	}
	if !cfg.Refresh.TreatRevokedAsTheft {
		t.Fatal("revoked refresh tokens must default to theft handling")
	}
	if cfg.JWT.SigningMethod != "rs256" {
		t.Fatalf("signing method = %q, want rs256", cfg.JWT.SigningMethod)
	}
}

func TestLoadConfigFromEnvOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "hs.key")
	if err := os.WriteFile(keyPath, []byte(testSigningKey), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTH_JWT_SIGNING_METHOD", "hs256")
	t.Setenv("AUTH_JWT_PRIVATE_KEY_FILE", keyPath)
	t.Setenv("AUTH_JWT_ACCESS_TTL", "5m")
	t.Setenv("AUTH_TWO_FACTOR_MAX_ATTEMPTS", "3")
	t.Setenv("AUTH_REFRESH_TREAT_REVOKED_AS_THEFT", "false")
	t.Setenv("AUTH_PASSWORD_POLICY_MIN_LENGTH", "12")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.JWT.SigningMethod != "hs256" || cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("jwt = %+v", cfg.JWT)
	}
	if string(cfg.JWT.PrivateKey) != testSigningKey {
		t.Fatal("private key file was not read")
	}
	if cfg.TwoFactor.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.TwoFactor.MaxAttempts)
	}
	if cfg.Refresh.TreatRevokedAsTheft {
		t.Fatal("env must override TreatRevokedAsTheft")
	}
	if cfg.PasswordPolicy.MinLength != 12 || cfg.PasswordPolicy.MaxLength != 64 {
		t.Fatalf("policy = %+v", cfg.PasswordPolicy)
	}
	if cfg.TwoFactor.PendingTTL != 5*time.Minute {
		t.Fatal("unset variables must keep defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("AUTH_JWT_ACCESS_TTL", "soon")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigFromEnvMissingKeyFile(t *testing.T) {
	t.Setenv("AUTH_JWT_PRIVATE_KEY_FILE", filepath.Join(t.TempDir(), "missing.pem"))
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected read error")
	}
}
