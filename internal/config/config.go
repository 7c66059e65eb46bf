package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port        string
	DBConn      string
	StoreDriver string
	LogLevel    string

	JWTSecret string
	JWTTTL    time.Duration

	EncryptionAlgorithm string
	EncryptionKey       string

	LockTimeout     time.Duration
	TransferRetries int
	CardBIN         string

	AuditSchedule string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	AdminEmail   string

	AdminUsername string
	AdminPassword string
	AdminFullName string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBConn:              getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		StoreDriver:         getEnv("STORE_DRIVER", StorePostgres),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:           getEnv("JWT_SECRET", "secret"),
		EncryptionAlgorithm: getEnv("ENCRYPTION_ALGORITHM", "AES/GCM"),
		EncryptionKey:       getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		CardBIN:             getEnv("CARD_BIN", "400000"),
		AuditSchedule:       getEnv("AUDIT_SCHEDULE", "0 3 * * *"),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnv("SMTP_PORT", "587"),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SenderEmail:         getEnv("SENDER_EMAIL", "no-reply@bank.local"),
		AdminEmail:          getEnv("ADMIN_EMAIL", ""),
		AdminUsername:       getEnv("ADMIN_USERNAME", "ADMIN"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", "AdMiN"),
		AdminFullName:       getEnv("ADMIN_FULL_NAME", "Admin_account"),
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.TransferRetries, err = getInt("TRANSFER_RETRIES", 3); err != nil {
		return nil, err
	}

	if cfg.StoreDriver != StorePostgres && cfg.StoreDriver != StoreMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q", StorePostgres, StoreMemory)
	}
	if cfg.StoreDriver == StorePostgres && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptionAlgorithm == "" {
		return nil, fmt.Errorf("ENCRYPTION_ALGORITHM is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if cfg.TransferRetries < 0 {
		return nil, fmt.Errorf("TRANSFER_RETRIES must not be negative")
	}

	return cfg, nil
}

// MailEnabled reports whether admin notifications can be sent
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.AdminEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
