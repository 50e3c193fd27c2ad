package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automation.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := l.Config()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Engine.Workers != 16 || cfg.Engine.QueueDepth != 1000 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Scheduler.IntervalSeconds != 60 {
		t.Errorf("interval = %d, want 60", cfg.Scheduler.IntervalSeconds)
	}
	if cfg.Audit.RetentionCap != 1000 || cfg.Audit.SweepIntervalHours != 24 {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoader_Explicit(t *testing.T) {
	path := writeConfig(t, `
version: "1"
server:
  addr: ":9090"
storage:
  driver: sqlite
  dsn: /tmp/automation.db
engine:
  workers: 4
  queue_depth: 100
scheduler:
  interval_seconds: 30
audit:
  retention_cap: 500
logging:
  level: debug
`)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := l.Config()
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "/tmp/automation.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Audit.RetentionCap != 500 {
		t.Errorf("retention_cap = %d", cfg.Audit.RetentionCap)
	}
}

func TestLoader_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing version", "server:\n  addr: \":8080\"\n", "version is required"},
		{"unknown driver", "version: \"1\"\nstorage:\n  driver: oracle\n  dsn: x\n", "unknown driver"},
		{"missing dsn", "version: \"1\"\nstorage:\n  driver: postgres\n", "storage.dsn: required"},
		{"negative workers", "version: \"1\"\nengine:\n  workers: -1\n", "must not be negative"},
		{"bad level", "version: \"1\"\nlogging:\n  level: loud\n", "unknown level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := NewLoader(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\naudit:\n  retention_cap: 100\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}

	var observed int
	l.OnChange(func(cfg *Config) { observed = cfg.Audit.RetentionCap })

	if err := os.WriteFile(path, []byte("version: \"1\"\naudit:\n  retention_cap: 200\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := l.Reload()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audit.RetentionCap != 200 {
		t.Errorf("retention_cap = %d, want 200", cfg.Audit.RetentionCap)
	}
	if observed != 200 {
		t.Errorf("callback observed %d, want 200", observed)
	}
}

func TestLoader_FailedReloadKeepsLastGood(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\naudit:\n  retention_cap: 100\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}

	fired := false
	l.OnChange(func(*Config) { fired = true })

	if err := os.WriteFile(path, []byte("storage:\n  driver: oracle\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if fired {
		t.Error("callback fired on failed reload")
	}
	if got := l.Config().Audit.RetentionCap; got != 100 {
		t.Errorf("retention_cap = %d, want previous value 100", got)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
