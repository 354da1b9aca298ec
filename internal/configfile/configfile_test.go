package configfile

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DSN != "memory://" {
		t.Errorf("DSN = %q, want memory://", cfg.DSN)
	}
	if cfg.MigrationTimeoutSeconds != 30 {
		t.Errorf("MigrationTimeoutSeconds = %d, want 30", cfg.MigrationTimeoutSeconds)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load(missing): %v", err)
	}
	if cfg.DSN != DefaultConfig().DSN {
		t.Errorf("Load(missing) DSN = %q, want default %q", cfg.DSN, DefaultConfig().DSN)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		DSN:                     "mysql://root@127.0.0.1:3306/dynaform",
		ServerMode:              true,
		MigrationTimeoutSeconds: 45,
		RetryMaxElapsedSeconds:  90,
		DefaultActor:            "cli",
	}
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DSN != cfg.DSN {
		t.Errorf("DSN = %q, want %q", loaded.DSN, cfg.DSN)
	}
	if loaded.ServerMode != cfg.ServerMode {
		t.Errorf("ServerMode = %v, want %v", loaded.ServerMode, cfg.ServerMode)
	}
	if loaded.DefaultActor != cfg.DefaultActor {
		t.Errorf("DefaultActor = %q, want %q", loaded.DefaultActor, cfg.DefaultActor)
	}
}

func TestStorageConfigConversion(t *testing.T) {
	cfg := &Config{DSN: "memory://", MigrationTimeoutSeconds: 10, RetryMaxElapsedSeconds: 20}
	sc := cfg.StorageConfig()
	if sc.DSN != "memory://" {
		t.Errorf("StorageConfig DSN = %q, want memory://", sc.DSN)
	}
	if sc.MigrationTimeout.Seconds() != 10 {
		t.Errorf("MigrationTimeout = %v, want 10s", sc.MigrationTimeout)
	}
}
