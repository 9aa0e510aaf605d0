package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveAppliesBuiltinDefaults(t *testing.T) {
	cfg, err := Resolve(File{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("CommandTimeout = %v, want %v", cfg.CommandTimeout, DefaultCommandTimeout)
	}
	if cfg.HeartbeatPeriod != DefaultHeartbeatPeriod {
		t.Errorf("HeartbeatPeriod = %v, want %v", cfg.HeartbeatPeriod, DefaultHeartbeatPeriod)
	}
	if cfg.SocketPath == "" {
		t.Error("SocketPath must never resolve empty")
	}
}

func TestResolveFileOverridesDefaults(t *testing.T) {
	f := File{
		SocketPath:     "/tmp/custom.sock",
		CommandTimeout: "10s",
		BrowserBinary:  "/usr/bin/chromium",
		Headless:       true,
	}
	cfg, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SocketPath != "/tmp/custom.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.CommandTimeout)
	}
	if cfg.BrowserBinary != "/usr/bin/chromium" {
		t.Errorf("BrowserBinary = %q", cfg.BrowserBinary)
	}
	if !cfg.Headless {
		t.Error("Headless should be true")
	}
}

func TestResolveEnvVarBeatsFile(t *testing.T) {
	t.Setenv("AGENTFOX_SOCKET", "/tmp/env.sock")
	cfg, err := Resolve(File{SocketPath: "/tmp/file.sock"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SocketPath != "/tmp/env.sock" {
		t.Errorf("SocketPath = %q, want env var to win", cfg.SocketPath)
	}
}

func TestResolveRejectsMalformedDuration(t *testing.T) {
	_, err := Resolve(File{CommandTimeout: "not-a-duration"})
	if err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}

func TestLoadFileMissingPathIsNotAnError(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f != (File{}) {
		t.Errorf("expected zero File, got %+v", f)
	}
}

func TestLoadFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "socket_path: /tmp/from-yaml.sock\nheadless: true\ncommand_timeout: 5s\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.SocketPath != "/tmp/from-yaml.sock" {
		t.Errorf("SocketPath = %q", f.SocketPath)
	}
	if !f.Headless {
		t.Error("Headless should be true")
	}
	if f.CommandTimeout != "5s" {
		t.Errorf("CommandTimeout = %q", f.CommandTimeout)
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("socket_path: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected a parse error")
	}
}
