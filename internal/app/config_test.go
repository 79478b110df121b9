package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ERP_API_KEYS", " key-one, ,key-two ")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BatchConcurrency != 4 {
		t.Fatalf("expected batch concurrency 4, got %d", cfg.BatchConcurrency)
	}
	if cfg.AllowNegativeStock {
		t.Fatalf("negative stock must be disabled by default")
	}
	if len(cfg.ERPAPIKeys) != 2 || cfg.ERPAPIKeys[1] != "key-two" {
		t.Fatalf("unexpected erp keys %q", cfg.ERPAPIKeys)
	}
	profiles := cfg.TxProfiles()
	if profiles.Interactive.StatementTimeout != 5*time.Second || profiles.Bulk.LockTimeout != 30*time.Second {
		t.Fatalf("unexpected profiles %+v", profiles)
	}
}

func TestLoadConfigRejectsBadBatchConcurrency(t *testing.T) {
	t.Setenv("BATCH_CONCURRENCY", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero batch concurrency")
	}
}

func TestTxProfilesOverride(t *testing.T) {
	t.Setenv("TX_BULK_STATEMENT_TIMEOUT", "10m")
	t.Setenv("TX_INTERACTIVE_LOCK_TIMEOUT", "500ms")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	profiles := cfg.TxProfiles()
	if profiles.Bulk.StatementTimeout != 10*time.Minute {
		t.Fatalf("unexpected bulk timeout %v", profiles.Bulk.StatementTimeout)
	}
	if profiles.Interactive.LockTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected lock timeout %v", profiles.Interactive.LockTimeout)
	}
	if profiles.Interactive.Name != "interactive" {
		t.Fatalf("profile names must be kept, got %q", profiles.Interactive.Name)
	}
}

func TestLoadConfigRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "4")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	opts := cfg.Redis()
	if opts.Addr != "redis:6380" || opts.DB != 4 {
		t.Fatalf("unexpected redis options %+v", opts)
	}
	if opt := opts.AsynqOpt(); opt.Addr != "redis:6380" || opt.DB != 4 {
		t.Fatalf("asynq options must match redis options, got %+v", opt)
	}
}
