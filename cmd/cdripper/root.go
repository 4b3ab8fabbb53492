// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/cdripper/internal/album"
	"github.com/ZSC714725/cdripper/internal/config"
	"github.com/ZSC714725/cdripper/internal/disc"
	"github.com/ZSC714725/cdripper/internal/history"
	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/process"
	"github.com/ZSC714725/cdripper/internal/session"
	"github.com/ZSC714725/cdripper/internal/tools"
	"github.com/ZSC714725/cdripper/internal/ui"
)

const defaultConfigPath = "~/.config/cdripper/config.yaml"

// Dependencies shared by the commands. Config and Logger are filled in
// before any command runs.
type Dependencies struct {
	ConfigPath string
	Config     *config.Config
	Logger     logger.Logger

	closers []io.Closer
}

// NewRootCmd builds the cdripper command tree.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cdripper",
		Short:         "Rip audio CDs and encode them to FLAC",
		Long:          "cdripper rips an audio CD with cdparanoia, encodes every track of the album with flac and files the result into the music library.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", defaultConfigPath, "Configuration file path (YAML or TOML)")

	rootCmd.AddCommand(NewRipCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewHistoryCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

func (d *Dependencies) load() error {
	if d.Config != nil {
		return nil
	}
	cfg, err := config.Load(config.ExpandPath(d.ConfigPath))
	if err != nil {
		return err
	}
	d.Config = cfg

	if d.Logger == nil {
		l, closer := logger.NewWithOptions(logger.Options{
			Prefix: "cdripper",
			Level:  logger.ParseLevel(cfg.Log.Level),
			File:   config.ExpandPath(cfg.Log.File),
		})
		d.Logger = l
		d.closers = append(d.closers, closer)
	}
	return nil
}

// Close releases what the commands opened.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i].Close()
	}
	d.closers = nil
}

func (d *Dependencies) toolchain() (tools.Toolchain, error) {
	return tools.New(tools.Config{
		Ripper:  d.Config.Ripper.Path,
		Encoder: d.Config.Encoder.Path,
	})
}

func (d *Dependencies) openHistory() (*history.Store, error) {
	h, err := history.Open(config.ExpandPath(d.Config.Paths.HistoryDB))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	d.closers = append(d.closers, h)
	return h, nil
}

func (d *Dependencies) albumConfig() album.Config {
	return album.Config{
		LibraryDir: config.ExpandPath(d.Config.Paths.LibraryDir),
		Logger:     logger.WithPrefix(d.Logger, "album"),
	}
}

// sessionDefaults wires the real collaborators into a session Config.
func (d *Dependencies) sessionDefaults(tc tools.Toolchain, rec session.Recorder, surface ui.Surface) session.Config {
	cfg := d.Config
	return session.Config{
		Opener:          album.OpenFLAC,
		Disc:            disc.NewCommandReader(cfg.Disc.IDCommand, logger.WithPrefix(d.Logger, "disc")),
		Launcher:        process.NewRunner(process.RunnerConfig{Logger: logger.WithPrefix(d.Logger, "process")}),
		RipperBinary:    tc.Ripper(),
		EncoderBinary:   tc.Encoder(),
		RipperOptions:   cfg.Ripper.Options,
		EncoderOptions:  cfg.Encoder.Options,
		LookupDevice:    cfg.Disc.LookupDevice,
		WorkRoot:        config.ExpandPath(cfg.Paths.WorkRoot),
		Surface:         surface,
		Logger:          d.Logger,
		Lock:            disc.NewLocker(config.ExpandPath(cfg.Disc.LockDir)).Acquire,
		Recorder:        rec,
		NewRipParser:    tc.NewRipParser,
		NewEncodeParser: tc.NewEncodeParser,
	}
}
