package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Listen != "127.0.0.1:8420" || cfg.Server.BasePath != "/api" || !cfg.Server.Metrics {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Store.DSN == "" || cfg.Monitor.LogsDir == "" {
		t.Fatalf("empty default paths: %+v", cfg)
	}
	if cfg.Monitor.GracePeriod != 2*time.Second {
		t.Fatalf("unexpected grace period: %v", cfg.Monitor.GracePeriod)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unexpected log level: %q", cfg.Log.Level)
	}
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentmon.toml")
	data := `
[server]
listen = "0.0.0.0:9000"
metrics = false

[store]
dsn = "/var/lib/agentmon/agentmon.db"

[archive]
dsn = "postgres://user:pw@db:5432/audit"

[monitor]
logs_dir = "/var/log/agents"
grace_period = "5s"

[log]
level = "debug"
file = "/var/log/agentmon.log"
max_size_mb = 10
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" || cfg.Server.Metrics {
		t.Fatalf("server not loaded: %+v", cfg.Server)
	}
	// unset keys keep their defaults
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("default base_path lost: %q", cfg.Server.BasePath)
	}
	if cfg.Store.DSN != "/var/lib/agentmon/agentmon.db" {
		t.Fatalf("store not loaded: %+v", cfg.Store)
	}
	if cfg.Archive.DSN != "postgres://user:pw@db:5432/audit" {
		t.Fatalf("archive not loaded: %+v", cfg.Archive)
	}
	if cfg.Monitor.LogsDir != "/var/log/agents" || cfg.Monitor.GracePeriod != 5*time.Second {
		t.Fatalf("monitor not loaded: %+v", cfg.Monitor)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "/var/log/agentmon.log" || cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("log not loaded: %+v", cfg.Log)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Store.DSN = filepath.Join(dir, "data", "agentmon.db")
	cfg.Monitor.LogsDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, p := range []string{filepath.Join(dir, "data"), cfg.Monitor.LogsDir} {
		if st, err := os.Stat(p); err != nil || !st.IsDir() {
			t.Fatalf("missing dir %s: %v", p, err)
		}
	}
}

func TestEnsureDirsRemoteDSN(t *testing.T) {
	cfg := Default()
	cfg.Store.DSN = "postgres://user:pw@db:5432/agentmon"
	cfg.Monitor.LogsDir = filepath.Join(t.TempDir(), "logs")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	if _, err := os.Stat("postgres:"); err == nil {
		t.Fatal("created a directory out of a remote DSN")
	}
}
