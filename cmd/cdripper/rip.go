// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/cdripper/internal/album"
	"github.com/ZSC714725/cdripper/internal/disc"
	"github.com/ZSC714725/cdripper/internal/session"
	"github.com/ZSC714725/cdripper/internal/ui"
)

// NewRipCmd rips the disc in the drive into the album described by a manifest.
func NewRipCmd(deps *Dependencies) *cobra.Command {
	var (
		manifestPath string
		device       string
		wait         bool
		noHistory    bool
	)

	cmd := &cobra.Command{
		Use:   "rip",
		Short: "Rip and encode the disc in the drive",
		Example: `  cdripper rip --album album.yaml
  cdripper rip --album album.yaml --device /dev/sr1 --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(manifestPath) == 0 {
				return errors.New("--album is required")
			}
			m, err := album.LoadManifest(manifestPath)
			if err != nil {
				return err
			}

			tc, err := deps.toolchain()
			if err != nil {
				return err
			}
			if err := tc.ValidateRipperOptions(deps.Config.Ripper.Options); err != nil {
				return fmt.Errorf("%w: ripper: %v", session.ErrInvalidOptions, err)
			}
			if err := tc.ValidateEncoderOptions(deps.Config.Encoder.Options); err != nil {
				return fmt.Errorf("%w: encoder: %v", session.ErrInvalidOptions, err)
			}

			var rec session.Recorder
			if !noHistory {
				if h, err := deps.openHistory(); err != nil {
					deps.Logger.Error("%v, not recording this session", err)
				} else {
					rec = h
				}
			}

			console := ui.NewConsole(cmd.OutOrStdout())
			defer console.Flush()

			cfg := deps.sessionDefaults(tc, rec, console)
			cfg.Album = album.New(m, deps.albumConfig())
			if len(device) != 0 {
				cfg.LookupDevice = device
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if wait {
				if err := disc.WaitForMedia(ctx, session.Device(cfg.LookupDevice), deps.Logger); err != nil {
					return err
				}
			}

			sess, err := session.New(cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			err = sess.Run(ctx)
			printSummary(cmd, sess.Snapshot())
			if interrupted(err) {
				return context.Canceled
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "album", "a", "", "Album manifest (YAML)")
	cmd.Flags().StringVarP(&device, "device", "d", "", "CD device, overrides disc.lookup_device")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for a disc to be inserted")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the session in the history database")
	return cmd
}

func printSummary(cmd *cobra.Command, snap session.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nsession %s: %s, %d/%d tracks", snap.ID, snap.State, snap.Produced, snap.Expected)
	if snap.DiscID != "" {
		fmt.Fprintf(out, " (disc %s)", snap.DiscID)
	}
	fmt.Fprintln(out)
	if len(snap.Committed) > 0 {
		fmt.Fprintf(out, "  %s\n", strings.Join(snap.Committed, "\n  "))
	}
	if snap.State == session.StateError && snap.Workdir != "" {
		fmt.Fprintf(out, "work directory kept at %s\n", snap.Workdir)
	}
}

// interrupted reports whether err comes from Ctrl+C.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, session.ErrCancelled)
}
