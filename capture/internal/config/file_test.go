package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	path := writeConfig(t, `
pages:
  - id: shop
    url: https://example.com
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Buffer.Count != 5 {
		t.Fatalf("buffer count: got %d, want 5", cfg.Buffer.Count)
	}
	if cfg.Buffer.MaxLatency != 500*time.Millisecond {
		t.Fatalf("buffer latency: got %v, want 500ms", cfg.Buffer.MaxLatency)
	}
	if cfg.Store.MaxEvents != 1500 {
		t.Fatalf("store cap: got %d, want 1500", cfg.Store.MaxEvents)
	}
	if cfg.Pages[0].LoadTimeout != 30*time.Second {
		t.Fatalf("load timeout: got %v, want 30s", cfg.Pages[0].LoadTimeout)
	}
	if cfg.Pages[0].DwellTime != 0 {
		t.Fatalf("dwell: got %v, want 0 (capture until shutdown)", cfg.Pages[0].DwellTime)
	}
}

func TestLoadFileDwellTime(t *testing.T) {
	path := writeConfig(t, `
pages:
  - id: shop
    url: https://example.com
    dwell_time: 45s
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pages[0].DwellTime != 45*time.Second {
		t.Fatalf("dwell: got %v, want 45s", cfg.Pages[0].DwellTime)
	}
}

func TestLoadFileExplicitValues(t *testing.T) {
	path := writeConfig(t, `
buffer:
  count: 20
  max_latency: 2s
store:
  path: /tmp/cap.db
  max_events: 100
sinks:
  - type: webhook
    url: https://collector.example.com/ingest
api:
  addr: ":9000"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Buffer.Count != 20 {
		t.Fatalf("buffer count: got %d, want 20", cfg.Buffer.Count)
	}
	if cfg.Buffer.MaxLatency != 2*time.Second {
		t.Fatalf("buffer latency: got %v, want 2s", cfg.Buffer.MaxLatency)
	}
	if cfg.Store.Path != "/tmp/cap.db" {
		t.Fatalf("store path: got %q", cfg.Store.Path)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "webhook" {
		t.Fatalf("sinks: got %+v", cfg.Sinks)
	}
	if cfg.API.Addr != ":9000" {
		t.Fatalf("api addr: got %q", cfg.API.Addr)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileBadYAML(t *testing.T) {
	path := writeConfig(t, "buffer: [not a map")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
