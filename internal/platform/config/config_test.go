package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FeeRate != 0.10 || !cfg.FeeOnPartial {
		t.Fatalf("unexpected fee defaults: %+v", cfg)
	}
	if cfg.VerificationThreshold != 0.85 {
		t.Fatalf("expected threshold 0.85, got %v", cfg.VerificationThreshold)
	}
	if cfg.IdempotencyTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day idempotency ttl, got %v", cfg.IdempotencyTTL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "http_port: \"9090\"\nfee_rate: 0.2\nadmin_assignment: round-robin\nverify_timeout: 30s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FEE_RATE", "0.05")
	t.Setenv("FEE_ON_PARTIAL", "off")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected port from file, got %q", cfg.HTTPPort)
	}
	if cfg.FeeRate != 0.05 {
		t.Fatalf("expected env to override fee rate, got %v", cfg.FeeRate)
	}
	if cfg.FeeOnPartial {
		t.Fatalf("expected fee on partial disabled")
	}
	if cfg.AdminAssignment != "round-robin" {
		t.Fatalf("expected round-robin, got %q", cfg.AdminAssignment)
	}
	if cfg.VerifyTimeout != 30*time.Second {
		t.Fatalf("expected 30s verify timeout, got %v", cfg.VerifyTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"FEE_RATE":               "1.5",
		"VERIFICATION_THRESHOLD": "0",
		"ADMIN_ASSIGNMENT":       "random",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", name, value)
			}
		})
	}
}
