// Package config loads the daemon configuration from a JSON file. A missing
// file, or a missing field, falls back to the defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Printer dialers.
const (
	DialerProfile = "profile"
	DialerSocket  = "socket"
	DialerTTY     = "tty"
)

type Config struct {
	// Socket is the bridge's unix socket path.
	Socket string `json:"socket"`
	// PushListen is the push webhook listen address; empty disables it.
	PushListen string  `json:"push_listen"`
	Printer    Printer `json:"printer"`
	Alert      Alert   `json:"alert"`
	Log        Log     `json:"log"`
}

type Printer struct {
	Dialer   string `json:"dialer"`
	Channel  uint8  `json:"channel"`
	TTY      string `json:"tty"`
	BaudRate int    `json:"baud_rate"`
}

type Alert struct {
	AppName    string   `json:"app_name"`
	Player     string   `json:"player"`
	PlayerArgs []string `json:"player_args"`
	SoundDirs  []string `json:"sound_dirs"`
	// VolumeKeys is the evdev device carrying the hardware volume keys.
	VolumeKeys string `json:"volume_keys"`
}

type Log struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Socket:     SocketPath(),
		PushListen: "127.0.0.1:8737",
		Printer: Printer{
			Dialer:   DialerProfile,
			Channel:  1,
			BaudRate: 115200,
		},
		Alert: Alert{
			AppName: "POS",
		},
		Log: Log{Level: "info"},
	}
}

// Path is $XDG_CONFIG_HOME/posbridge/config.json.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "posbridge", "config.json")
}

// SocketPath is $XDG_RUNTIME_DIR/posbridge.sock.
func SocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "posbridge.sock")
}

// Load reads path over the defaults. An empty path means Path().
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Printer.Dialer {
	case DialerProfile:
	case DialerSocket:
		if c.Printer.Channel < 1 || c.Printer.Channel > 30 {
			return fmt.Errorf("config: rfcomm channel %d out of range 1-30", c.Printer.Channel)
		}
	case DialerTTY:
		if c.Printer.TTY == "" {
			return errors.New("config: tty dialer needs printer.tty")
		}
	default:
		return fmt.Errorf("config: unknown printer dialer %q", c.Printer.Dialer)
	}
	if c.Socket == "" {
		return errors.New("config: empty socket path")
	}
	return nil
}
