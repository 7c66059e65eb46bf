package config

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != StorePostgres {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.LockTimeout != 2*time.Second || cfg.TransferRetries != 3 || cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("timeouts=%v retries=%d ttl=%v", cfg.LockTimeout, cfg.TransferRetries, cfg.JWTTTL)
	}
	if cfg.MailEnabled() {
		t.Fatal("mail must be disabled without SMTP_HOST")
	}
}

func TestNewConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreMemory)
	t.Setenv("DB_CONN", "")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("TRANSFER_RETRIES", "0")
	t.Setenv("SMTP_HOST", "smtp.local")
	t.Setenv("ADMIN_EMAIL", "ops@bank.local")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LockTimeout != 250*time.Millisecond || cfg.TransferRetries != 0 {
		t.Fatalf("lock=%v retries=%d", cfg.LockTimeout, cfg.TransferRetries)
	}
	if !cfg.MailEnabled() {
		t.Fatal("mail must be enabled")
	}
}

func TestNewConfigErrors(t *testing.T) {
	cases := map[string][2]string{
		"empty key":        {"ENCRYPTION_KEY", ""},
		"empty secret":     {"JWT_SECRET", ""},
		"bad driver":       {"STORE_DRIVER", "mongo"},
		"bad timeout":      {"LOCK_TIMEOUT", "soon"},
		"negative timeout": {"LOCK_TIMEOUT", "-1s"},
		"bad retries":      {"TRANSFER_RETRIES", "many"},
		"negative retries": {"TRANSFER_RETRIES", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := NewConfig(); err == nil {
				t.Fatalf("%s=%q accepted", kv[0], kv[1])
			}
		})
	}
}
