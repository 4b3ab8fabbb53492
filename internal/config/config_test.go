// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ripper.Options != "--batch 1:-" {
		t.Errorf("ripper options = %q", cfg.Ripper.Options)
	}
	if cfg.Encoder.Options != "--verify --replay-gain --delete-input-file" {
		t.Errorf("encoder options = %q", cfg.Encoder.Options)
	}
	if cfg.Server.Bind != "127.0.0.1:8090" {
		t.Errorf("bind = %q", cfg.Server.Bind)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdripper.yaml")
	data := `
ripper:
  options: "--batch --never-skip 1:-"
encoder:
  path: /usr/local/bin/flac
  options: "-8"
disc:
  lookup_device: "/dev/sr1, /dev/sr0"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ripper.Options != "--batch --never-skip 1:-" {
		t.Errorf("ripper options = %q", cfg.Ripper.Options)
	}
	if cfg.Ripper.Path != "cdparanoia" {
		t.Errorf("ripper path not back-filled: %q", cfg.Ripper.Path)
	}
	if cfg.Encoder.Path != "/usr/local/bin/flac" || cfg.Encoder.Options != "-8" {
		t.Errorf("encoder = %+v", cfg.Encoder)
	}
	if got := cfg.Device(); got != "/dev/sr1" {
		t.Errorf("Device() = %q, want /dev/sr1", got)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdripper.toml")
	data := `
[server]
bind = ":9999"

[encoder]
options = "--best"

[paths]
library_dir = "/srv/music"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != ":9999" {
		t.Errorf("bind = %q", cfg.Server.Bind)
	}
	if cfg.Encoder.Options != "--best" {
		t.Errorf("encoder options = %q", cfg.Encoder.Options)
	}
	if cfg.Paths.LibraryDir != "/srv/music" {
		t.Errorf("library dir = %q", cfg.Paths.LibraryDir)
	}
	if cfg.Disc.IDCommand != "cd-discid" {
		t.Errorf("id command not back-filled: %q", cfg.Disc.IDCommand)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("ripper: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDevice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dev/cdrom", "/dev/cdrom"},
		{"/dev/sr0,/dev/sr1", "/dev/sr0"},
		{" /dev/sr2 , /dev/sr0", "/dev/sr2"},
		{"", ""},
	}
	for _, tt := range tests {
		cfg := &Config{Disc: DiscConfig{LookupDevice: tt.in}}
		if got := cfg.Device(); got != tt.want {
			t.Errorf("Device(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/Music"); got != filepath.Join(home, "Music") {
		t.Errorf("ExpandPath(~/Music) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
}
