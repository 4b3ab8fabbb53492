// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultBind          = "127.0.0.1:8090"
	defaultRipperPath    = "cdparanoia"
	defaultRipperOptions = "--batch 1:-"
	defaultEncoderPath   = "flac"
	defaultEncoderOpts   = "--verify --replay-gain --delete-input-file"
	defaultLookupDevice  = "/dev/cdrom"
	defaultDiscIDCommand = "cd-discid"
	defaultLibraryDir    = "~/Music"
	defaultHistoryDB     = "~/.local/share/cdripper/history.db"
	defaultLogLevel      = "info"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig `yaml:"server" toml:"server"`
	Ripper  ToolConfig   `yaml:"ripper" toml:"ripper"`
	Encoder ToolConfig   `yaml:"encoder" toml:"encoder"`
	Disc    DiscConfig   `yaml:"disc" toml:"disc"`
	Paths   PathsConfig  `yaml:"paths" toml:"paths"`
	Log     LogConfig    `yaml:"log" toml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind" toml:"bind"`
}

// ToolConfig 外部程序配置。Options is split on whitespace into the argument vector.
type ToolConfig struct {
	Path    string `yaml:"path" toml:"path"`
	Options string `yaml:"options" toml:"options"`
}

// DiscConfig 光驱配置
type DiscConfig struct {
	// LookupDevice may hold several comma separated devices; the first one is used.
	LookupDevice string `yaml:"lookup_device" toml:"lookup_device"`
	IDCommand    string `yaml:"id_command" toml:"id_command"`
	LockDir      string `yaml:"lock_dir" toml:"lock_dir"`
}

// PathsConfig 目录配置
type PathsConfig struct {
	WorkRoot   string `yaml:"work_root" toml:"work_root"`
	LibraryDir string `yaml:"library_dir" toml:"library_dir"`
	HistoryDB  string `yaml:"history_db" toml:"history_db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Bind: defaultBind},
		Ripper:  ToolConfig{Path: defaultRipperPath, Options: defaultRipperOptions},
		Encoder: ToolConfig{Path: defaultEncoderPath, Options: defaultEncoderOpts},
		Disc: DiscConfig{
			LookupDevice: defaultLookupDevice,
			IDCommand:    defaultDiscIDCommand,
			LockDir:      os.TempDir(),
		},
		Paths: PathsConfig{
			WorkRoot:   os.TempDir(),
			LibraryDir: defaultLibraryDir,
			HistoryDB:  defaultHistoryDB,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// Load 从 YAML 或 TOML 文件加载配置。A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// 填充空值
func (c *Config) normalize() {
	def := Default()
	fill := func(v *string, fallback string) {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			*v = fallback
		}
	}
	fill(&c.Server.Bind, def.Server.Bind)
	fill(&c.Ripper.Path, def.Ripper.Path)
	fill(&c.Encoder.Path, def.Encoder.Path)
	fill(&c.Disc.LookupDevice, def.Disc.LookupDevice)
	fill(&c.Disc.IDCommand, def.Disc.IDCommand)
	fill(&c.Disc.LockDir, def.Disc.LockDir)
	fill(&c.Paths.WorkRoot, def.Paths.WorkRoot)
	fill(&c.Paths.LibraryDir, def.Paths.LibraryDir)
	fill(&c.Paths.HistoryDB, def.Paths.HistoryDB)
	fill(&c.Log.Level, def.Log.Level)
}

// Device returns the first comma separated token of the lookup device setting.
func (c *Config) Device() string {
	device, _, _ := strings.Cut(c.Disc.LookupDevice, ",")
	return strings.TrimSpace(device)
}

// ExpandPath resolves a leading "~" against the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
