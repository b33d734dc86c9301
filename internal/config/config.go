package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds application configuration
type Config struct {
	Port      string
	LogLevel  string
	AccountID string

	JWTSecret           string
	PermitTTL           time.Duration
	OwnerPassphraseHash string
	EncryptionKey       []byte
	HMACSecret          string

	FinancialDataURL    string
	LendingURL          string
	GatewayTimeout      time.Duration
	GatewayMaxRetries   int
	GatewayRetryBackoff time.Duration
	CBRURL              string

	StoreBackend string
	DBConn       string
	RedisAddr    string

	ReminderSchedule string
	ReminderWindow   time.Duration
	ReminderEmail    string
	ReminderName     string
	SMTPHost         string
	SMTPPort         string
	SMTPUsername     string
	SMTPPassword     string
	SenderEmail      string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		AccountID: getEnv("ACCOUNT_ID", "default"),

		JWTSecret:           getEnv("JWT_SECRET", "secret"),
		OwnerPassphraseHash: getEnv("OWNER_PASSPHRASE_HASH", ""),
		HMACSecret:          getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),

		FinancialDataURL: getEnv("FINANCIAL_DATA_URL", "https://plaid.com/api/fetch-data"),
		LendingURL:       getEnv("LENDING_URL", "https://aave.com/api/request-loan"),
		CBRURL:           getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),

		StoreBackend: getEnv("STORE_BACKEND", StoreMemory),
		DBConn:       getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),

		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "@daily"),
		ReminderEmail:    getEnv("REMINDER_EMAIL", ""),
		ReminderName:     getEnv("REMINDER_NAME", "Account Owner"),
		SMTPHost:         getEnv("SMTP_HOST", "localhost"),
		SMTPPort:         getEnv("SMTP_PORT", "25"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@plutus.local"),
	}

	var err error
	if cfg.PermitTTL, err = getDuration("PERMIT_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = getDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.GatewayRetryBackoff, err = getDuration("GATEWAY_RETRY_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ReminderWindow, err = getDuration("REMINDER_WINDOW", 72*time.Hour); err != nil {
		return nil, err
	}
	if cfg.GatewayMaxRetries, err = getInt("GATEWAY_MAX_RETRIES", 2); err != nil {
		return nil, err
	}

	key, err := hex.DecodeString(getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"))
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex: %w", err)
	}
	cfg.EncryptionKey = key

	if cfg.AccountID == "" {
		return nil, fmt.Errorf("ACCOUNT_ID is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if len(cfg.EncryptionKey) != 16 && len(cfg.EncryptionKey) != 24 && len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 16, 24, or 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if cfg.GatewayMaxRetries < 0 {
		return nil, fmt.Errorf("GATEWAY_MAX_RETRIES must not be negative")
	}
	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if cfg.DBConn == "" {
			return nil, fmt.Errorf("DB_CONN is required for the postgres store")
		}
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
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
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return n, nil
}
