package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.Endpoint != "https://api.milorapart.top/apis/mbAIsc" {
		t.Fatalf("expected default synthesis endpoint, got %q", cfg.Synthesis.Endpoint)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Saver.DialogMode != "mock" {
		t.Fatalf("expected mock dialog mode by default, got %q", cfg.Saver.DialogMode)
	}
	if cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected ephemeral history by default, got %q", cfg.History.RetentionMode)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manbo.yaml")
	data := []byte(`
synthesis:
  endpoint: https://example.test/tts
  timeout_ms: 5000
saver:
  dialog_mode: exec
  dialog_command: "save-dialog --native"
  atomic_write: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.Endpoint != "https://example.test/tts" {
		t.Fatalf("expected endpoint override, got %q", cfg.Synthesis.Endpoint)
	}
	if cfg.Synthesis.TimeoutMS != 5000 {
		t.Fatalf("expected timeout override, got %d", cfg.Synthesis.TimeoutMS)
	}
	if cfg.Saver.DialogMode != "exec" || cfg.Saver.DialogCommand != "save-dialog --native" {
		t.Fatalf("expected exec dialog override, got %+v", cfg.Saver)
	}
	if !cfg.Saver.AtomicWrite {
		t.Fatal("expected atomic_write override true")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MANBO_SYNTHESIS_ENDPOINT", "https://stub.test/api")
	t.Setenv("MANBO_SYNTHESIS_TIMEOUT_MS", "1234")
	t.Setenv("MANBO_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MANBO_BUS_USERNAME", "alice")
	t.Setenv("MANBO_BUS_PASSWORD", "secret")
	t.Setenv("MANBO_SAVER_DOWNLOAD_TIMEOUT_MS", "9000")
	t.Setenv("MANBO_SAVER_ATOMIC_WRITE", "true")
	t.Setenv("MANBO_HISTORY_PATH", "./tmp.db")
	t.Setenv("MANBO_HISTORY_RETENTION_MODE", "persistent")
	t.Setenv("MANBO_HISTORY_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Synthesis.Endpoint != "https://stub.test/api" {
		t.Fatalf("expected endpoint override, got %q", cfg.Synthesis.Endpoint)
	}
	if cfg.Synthesis.TimeoutMS != 1234 {
		t.Fatalf("expected timeout 1234, got %d", cfg.Synthesis.TimeoutMS)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Saver.DownloadTimeoutMS != 9000 {
		t.Fatalf("expected download timeout override, got %d", cfg.Saver.DownloadTimeoutMS)
	}
	if !cfg.Saver.AtomicWrite {
		t.Fatal("expected atomic write override true")
	}
	if cfg.History.Path != "./tmp.db" {
		t.Fatalf("expected history path override")
	}
	if cfg.History.RetentionMode != "persistent" {
		t.Fatalf("expected history retention mode override")
	}
	if cfg.History.RetentionDays != 7 {
		t.Fatalf("expected history retention days override")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("MANBO_SAVER_DIALOG_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec dialog mode without command")
	}
}

func TestValidateRejectsBadRetentionMode(t *testing.T) {
	t.Setenv("MANBO_HISTORY_RETENTION_MODE", "forever")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid retention mode")
	}
}
