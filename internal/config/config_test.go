package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.SyncBatchSize != 50 {
		t.Errorf("Expected default batch size 50, got %d", cfg.SyncBatchSize)
	}
	if cfg.ProgressInterval != 10 {
		t.Errorf("Expected default progress interval 10, got %d", cfg.ProgressInterval)
	}
	if cfg.MaxConcurrentSyncs != 4 {
		t.Errorf("Expected default max concurrent syncs 4, got %d", cfg.MaxConcurrentSyncs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadConfigRequiresEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when ENCRYPTION_KEY is unset")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-key")
	t.Setenv("SYNC_BATCH_SIZE", "25")
	t.Setenv("PROGRESS_INTERVAL", "5")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.SyncBatchSize != 25 {
		t.Errorf("Expected batch size 25, got %d", cfg.SyncBatchSize)
	}
	if cfg.ProgressInterval != 5 {
		t.Errorf("Expected progress interval 5, got %d", cfg.ProgressInterval)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path override, got %s", cfg.DatabasePath)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabasePath:       "/data/test.db",
			ListenAddr:         ":8080",
			EncryptionKey:      "key",
			SyncBatchSize:      50,
			ProgressInterval:   10,
			MaxConcurrentSyncs: 4,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.SyncBatchSize = 0 }},
		{"huge batch size", func(c *Config) { c.SyncBatchSize = 5000 }},
		{"zero progress interval", func(c *Config) { c.ProgressInterval = 0 }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentSyncs = 0 }},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
