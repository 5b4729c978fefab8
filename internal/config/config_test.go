package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Presence.Staleness() != 3*time.Second {
		t.Errorf("staleness = %v, want 3s", cfg.Presence.Staleness())
	}
	if cfg.Presence.SweepInterval() != time.Second {
		t.Errorf("sweep interval = %v, want 1s", cfg.Presence.SweepInterval())
	}
	if cfg.Presence.StopTypingQuiet() != time.Second {
		t.Errorf("stop typing quiet = %v, want 1s", cfg.Presence.StopTypingQuiet())
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  api_url: https://chat.example.com/api
  socket_url: wss://chat.example.com
presence:
  staleness_ms: 5000
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.APIURL != "https://chat.example.com/api" {
		t.Errorf("api_url = %q", cfg.Server.APIURL)
	}
	if cfg.Presence.StalenessMs != 5000 {
		t.Errorf("staleness_ms = %d, want 5000", cfg.Presence.StalenessMs)
	}
	// Untouched sections keep defaults.
	if cfg.Connection.PongWaitSeconds != 45 {
		t.Errorf("pong_wait_seconds = %d, want default 45", cfg.Connection.PongWaitSeconds)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("COURIER_TEST_API", "https://env.example.com/api")

	cfg, err := Parse([]byte("server:\n  api_url: ${COURIER_TEST_API}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.APIURL != "https://env.example.com/api" {
		t.Errorf("api_url = %q, want env value", cfg.Server.APIURL)
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("server:\n  api_uri: typo\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_RejectsInvalidPresence(t *testing.T) {
	_, err := Parse([]byte("presence:\n  staleness_ms: 500\n"))
	if err == nil {
		t.Fatal("expected error: staleness below sweep interval")
	}
	if !strings.Contains(err.Error(), "staleness_ms") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_RejectsPongWaitBelowPing(t *testing.T) {
	_, err := Parse([]byte("connection:\n  ping_interval_seconds: 60\n"))
	if err == nil {
		t.Fatal("expected error: pong wait below ping interval")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Server.APIURL != Default().Server.APIURL {
		t.Errorf("expected defaults for missing file")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.yaml")
	content := "log:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}
