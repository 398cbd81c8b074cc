package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clipdesk/clipdesk/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		downloads  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past sessions and downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := ctx.logger(os.Stderr, "text")
			database, repo, err := ctx.openHistory(logger)
			if err != nil {
				return err
			}
			defer database.Close()

			c := cmd.Context()
			sessions, err := repo.ListSessions(c, limit)
			if err != nil {
				return err
			}
			var dls []*history.Download
			if downloads || jsonOutput {
				if dls, err = repo.ListDownloads(c, "", limit); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, map[string]any{"sessions": sessions, "downloads": dls})
			}

			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet.")
			} else {
				fmt.Fprintln(out, renderSessions(sessions, time.Now()))
			}
			if downloads {
				if len(dls) == 0 {
					fmt.Fprintln(out, "No downloads recorded yet.")
				} else {
					fmt.Fprintln(out, renderDownloads(dls, time.Now()))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&downloads, "downloads", false, "Also list saved archives")
	return cmd
}

func renderSessions(sessions []*history.Session, now time.Time) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		status := s.Status
		if s.Error != "" {
			status += ": " + s.Error
		}
		rows = append(rows, []string{
			shortID(s.ID),
			s.Filename,
			humanize.Bytes(uint64(s.SizeBytes)),
			strings.Join(s.Movements, ", "),
			strconv.Itoa(s.ClipCount),
			status,
			humanize.RelTime(s.CreatedAt, now, "ago", "from now"),
		})
	}
	return renderTable(
		[]string{"Session", "Video", "Size", "Movements", "Clips", "Status", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func renderDownloads(dls []*history.Download, now time.Time) string {
	rows := make([][]string, 0, len(dls))
	for _, d := range dls {
		rows = append(rows, []string{
			shortID(d.SessionID),
			d.Path,
			strconv.Itoa(d.ClipCount),
			humanize.Bytes(uint64(d.SizeBytes)),
			humanize.RelTime(d.CreatedAt, now, "ago", "from now"),
		})
	}
	return renderTable(
		[]string{"Session", "Archive", "Clips", "Size", "Saved"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
