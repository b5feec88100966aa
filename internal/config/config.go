package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	DatabasePath string
	ListenAddr   string
	LogLevel     string

	// EncryptionKey protects account app passwords at rest.
	EncryptionKey string

	// SyncBatchSize is the number of emails flushed per transaction.
	SyncBatchSize int
	// ProgressInterval is how many processed messages between progress writes.
	ProgressInterval int
	// MaxConcurrentSyncs bounds how many accounts may sync at once.
	MaxConcurrentSyncs int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabasePath:       getEnv("DATABASE_PATH", "/data/mailmirror.db"),
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		SyncBatchSize:      getEnvInt("SYNC_BATCH_SIZE", 50),
		ProgressInterval:   getEnvInt("PROGRESS_INTERVAL", 10),
		MaxConcurrentSyncs: getEnvInt("MAX_CONCURRENT_SYNCS", 4),
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.SyncBatchSize < 1 || c.SyncBatchSize > 1000 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be between 1 and 1000")
	}
	if c.ProgressInterval < 1 {
		return fmt.Errorf("PROGRESS_INTERVAL must be at least 1")
	}
	if c.MaxConcurrentSyncs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SYNCS must be at least 1")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
