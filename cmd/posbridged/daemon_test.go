//go:build linux

package main

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"defaults", nil, false},
		{"socket", []string{"--socket", "/run/pos/b.sock"}, false},
		{"empty socket", []string{"--socket", ""}, true},
		{"disable webhook", []string{"--push-listen", ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := rootCommand()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			configFile = filepath.Join(t.TempDir(), "absent.json")
			cfg, err := loadConfig(cmd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadConfig() err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.name == "socket" && cfg.Socket != "/run/pos/b.sock" {
				t.Errorf("Socket = %q", cfg.Socket)
			}
			if tt.name == "disable webhook" && cfg.PushListen != "" {
				t.Errorf("PushListen = %q", cfg.PushListen)
			}
		})
	}
}
