// Package config resolves runtime configuration for every
// agentfox-bridge process: the broker's socket path, timeouts, and the
// browser driver's launch options. Layering is flags > env vars >
// optional YAML file > built-in default, mirroring the teacher's
// registerFlags/parseAndValidateFlags layering.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults from spec section 4.B/6.
const (
	DefaultCommandTimeout  = 30 * time.Second
	DefaultHeartbeatPeriod = 15 * time.Second
	DefaultPongGrace       = 5 * time.Second
	DefaultExtensionWait   = 5 * time.Second
)

// File is the optional on-disk config, loaded with gopkg.in/yaml.v3.
type File struct {
	SocketPath      string `yaml:"socket_path"`
	CommandTimeout  string `yaml:"command_timeout"`
	HeartbeatPeriod string `yaml:"heartbeat_period"`
	PongGrace       string `yaml:"pong_grace"`
	ExtensionWait   string `yaml:"extension_wait"`
	BrowserBinary   string `yaml:"browser_binary"`
	Headless        bool   `yaml:"headless"`
}

// Config is the fully-resolved runtime configuration.
type Config struct {
	SocketPath      string
	CommandTimeout  time.Duration
	HeartbeatPeriod time.Duration
	PongGrace       time.Duration
	ExtensionWait   time.Duration
	BrowserBinary   string
	Headless        bool
}

// LoadFile reads and parses a YAML config file. A missing path is not
// an error: it simply yields a zero File so defaults apply.
func LoadFile(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// Resolve merges a parsed File over the built-in defaults, then applies
// environment variable overrides, matching spec section 6's resolution
// order (env var beats config file, which beats default).
func Resolve(f File) (Config, error) {
	cfg := Config{
		SocketPath:      defaultSocketPath(),
		CommandTimeout:  DefaultCommandTimeout,
		HeartbeatPeriod: DefaultHeartbeatPeriod,
		PongGrace:       DefaultPongGrace,
		ExtensionWait:   DefaultExtensionWait,
		Headless:        f.Headless,
	}

	if f.SocketPath != "" {
		cfg.SocketPath = f.SocketPath
	}
	if f.BrowserBinary != "" {
		cfg.BrowserBinary = f.BrowserBinary
	}
	if err := applyDuration(f.CommandTimeout, &cfg.CommandTimeout); err != nil {
		return cfg, fmt.Errorf("config: command_timeout: %w", err)
	}
	if err := applyDuration(f.HeartbeatPeriod, &cfg.HeartbeatPeriod); err != nil {
		return cfg, fmt.Errorf("config: heartbeat_period: %w", err)
	}
	if err := applyDuration(f.PongGrace, &cfg.PongGrace); err != nil {
		return cfg, fmt.Errorf("config: pong_grace: %w", err)
	}
	if err := applyDuration(f.ExtensionWait, &cfg.ExtensionWait); err != nil {
		return cfg, fmt.Errorf("config: extension_wait: %w", err)
	}

	if v := os.Getenv("AGENTFOX_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("AGENTFOX_BROWSER_BINARY"); v != "" {
		cfg.BrowserBinary = v
	}

	return cfg, nil
}

func applyDuration(raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// defaultSocketPath follows spec section 6: XDG_RUNTIME_DIR if set,
// else /tmp/agentfox-<uid-or-pid>.sock.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "agentfox.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("agentfox-%d.sock", runtimeID()))
}

func runtimeID() int {
	if uid := os.Getuid(); uid >= 0 {
		return uid
	}
	return os.Getpid()
}
