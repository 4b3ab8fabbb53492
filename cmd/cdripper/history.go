// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewHistoryCmd lists finished sessions.
func NewHistoryCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := deps.openHistory()
			if err != nil {
				return err
			}
			records, err := h.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				tracks := fmt.Sprintf("%d/%d", r.Produced, r.Expected)
				rows = append(rows, []string{
					r.ID,
					r.Finished.Local().Format(time.DateTime),
					string(r.State),
					r.DiscID,
					tracks,
					formatDuration(r.Finished.Sub(r.Started)),
					r.Error,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Finished", "State", "Disc", "Tracks", "Took", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show, 0 for all")
	return cmd
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
