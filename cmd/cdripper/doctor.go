// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/cdripper/internal/config"
	"github.com/ZSC714725/cdripper/internal/session"
	"github.com/ZSC714725/cdripper/internal/tools"
)

// NewDoctorCmd checks the external programs and directories.
func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			ok := true
			var rows [][]string
			check := func(name string, passed bool, detail string) {
				status := "ok"
				if !passed {
					status = "missing"
					ok = false
				}
				rows = append(rows, []string{name, status, detail})
			}

			for _, v := range []tools.ToolVersion{tools.Probe(cfg.Ripper.Path), tools.Probe(cfg.Encoder.Path)} {
				if v.Err != "" {
					check(v.Name, false, v.Err)
				} else {
					check(v.Name, true, fmt.Sprintf("%s (%s)", v.Version, v.Binary))
				}
			}
			if path, err := exec.LookPath(cfg.Disc.IDCommand); err != nil {
				check(cfg.Disc.IDCommand, false, err.Error())
			} else {
				check(cfg.Disc.IDCommand, true, path)
			}

			device := session.Device(cfg.Disc.LookupDevice)
			if _, err := os.Stat(device); err != nil {
				check("device", false, err.Error())
			} else {
				check("device", true, device)
			}

			for _, dir := range []struct{ name, path string }{
				{"work root", cfg.Paths.WorkRoot},
				{"library", cfg.Paths.LibraryDir},
			} {
				path := config.ExpandPath(dir.path)
				if st, err := os.Stat(path); err != nil {
					check(dir.name, false, err.Error())
				} else if !st.IsDir() {
					check(dir.name, false, path+" is not a directory")
				} else {
					check(dir.name, true, path)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if ok {
				fmt.Fprintln(out, "All prerequisites met.")
			} else {
				fmt.Fprintln(out, "Some prerequisites are missing.")
			}
			return nil
		},
	}
}
