package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"firestige.xyz/rocev2/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
rocev2:
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
    path: "prom"
  transmit:
    interface: "p4port0"
    count: 10
    pps: 1000
  capture:
    interface: "eth1"
    snap_len: 2048
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("Expected metrics on 127.0.0.1:9100, got %+v", cfg.Metrics)
	}
	if cfg.Metrics.Path != "/prom" {
		t.Errorf("Expected metrics path /prom, got %s", cfg.Metrics.Path)
	}
	if cfg.Transmit.Interface != "p4port0" || cfg.Transmit.Count != 10 || cfg.Transmit.PPS != 1000 {
		t.Errorf("Unexpected transmit config %+v", cfg.Transmit)
	}
	if cfg.Capture.SnapLen != 2048 {
		t.Errorf("Expected snap_len 2048, got %d", cfg.Capture.SnapLen)
	}
	if cfg.Capture.UDPPort != 4791 {
		t.Errorf("Expected default udp_port 4791, got %d", cfg.Capture.UDPPort)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected log defaults %+v", cfg.Log)
	}
	if cfg.Log.Outputs.File.Rotation.MaxSizeMB != 100 {
		t.Errorf("Expected max_size_mb 100, got %d", cfg.Log.Outputs.File.Rotation.MaxSizeMB)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Transmit.Count != 1 {
		t.Errorf("Expected transmit count 1, got %d", cfg.Transmit.Count)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ROCEV2_LOG_LEVEL", "warn")
	t.Setenv("ROCEV2_CAPTURE_UDP_PORT", "4792")

	cfg, err := Load(writeConfig(t, "rocev2:\n  log:\n    level: debug\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env override warn, got %s", cfg.Log.Level)
	}
	if cfg.Capture.UDPPort != 4792 {
		t.Errorf("Expected env override 4792, got %d", cfg.Capture.UDPPort)
	}
}

func TestLoadWithFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "info", "")
	fs.Int("pps", 0, "")
	if err := fs.Parse([]string{"--log-level", "error", "--pps", "50"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := LoadWithFlags("", fs, map[string]string{
		"log.level":    "log-level",
		"transmit.pps": "pps",
	})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Expected flag override error, got %s", cfg.Log.Level)
	}
	if cfg.Transmit.PPS != 50 {
		t.Errorf("Expected flag override 50, got %d", cfg.Transmit.PPS)
	}

	_, err = LoadWithFlags("", fs, map[string]string{"log.level": "missing"})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid for unknown flag, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "rocev2:\n  log:\n    level: verbose\n"},
		{"log format", "rocev2:\n  log:\n    format: xml\n"},
		{"empty pattern", "rocev2:\n  log:\n    format: pattern\n    pattern: \"\"\n"},
		{"negative count", "rocev2:\n  transmit:\n    count: -1\n"},
		{"negative pps", "rocev2:\n  transmit:\n    pps: -5\n"},
		{"udp port", "rocev2:\n  capture:\n    udp_port: 70000\n"},
		{"snap len", "rocev2:\n  capture:\n    snap_len: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "rocev2.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Format != "pattern" {
		t.Errorf("Log.Format = %q, want pattern", cfg.Log.Format)
	}
	if cfg.Capture.UDPPort != 4791 {
		t.Errorf("Capture.UDPPort = %d, want 4791", cfg.Capture.UDPPort)
	}
}
