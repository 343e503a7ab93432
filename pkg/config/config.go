// Package config loads the daemon configuration from a TOML file. Every
// field has a working default so a missing file is not an error; the zero
// config runs a usable daemon out of ~/.navi.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that unmarshals from a Go duration string
// ("30s", "1h") in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// File is the on-disk daemon configuration.
type File struct {
	SocketPath        string   `toml:"socket_path"`
	DBPath            string   `toml:"db_path"`
	PIDPath           string   `toml:"pid_path"`
	RuntimeBin        string   `toml:"runtime_bin"`
	DefaultModel      string   `toml:"default_model"`
	Workdir           string   `toml:"workdir"`
	MaxChildren       int      `toml:"max_children"`
	MaxIterations     int      `toml:"max_iterations"`
	EscalationTimeout Duration `toml:"escalation_timeout"`
	ContinueDelay     Duration `toml:"continue_delay"`
	SignalsPath       string   `toml:"signals_path"`
	LogLevel          string   `toml:"log_level"` // debug | info | warn | error
}

// Dir returns the navi state directory (~/.navi), creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".navi")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := f.applyDefaults(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) applyDefaults() error {
	needDir := f.SocketPath == "" || f.DBPath == "" || f.PIDPath == "" || f.SignalsPath == ""
	var dir string
	if needDir {
		var err error
		dir, err = Dir()
		if err != nil {
			return err
		}
	}
	if f.SocketPath == "" {
		f.SocketPath = filepath.Join(dir, "navi.sock")
	}
	if f.DBPath == "" {
		f.DBPath = filepath.Join(dir, "navi.db")
	}
	if f.PIDPath == "" {
		f.PIDPath = filepath.Join(dir, "navi.pid")
	}
	if f.SignalsPath == "" {
		f.SignalsPath = filepath.Join(dir, "signals.yaml")
	}
	if f.RuntimeBin == "" {
		f.RuntimeBin = "claude"
	}
	if f.LogLevel == "" {
		f.LogLevel = "info"
	}
	return nil
}
