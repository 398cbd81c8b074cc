package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/clipdesk/clipdesk/internal/config"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPairs(configPairs(cfg)))
			return nil
		},
	}
}

func configPairs(cfg *config.EnvConfig) [][2]string {
	source := cfg.Source()
	if source == "" {
		source = "(defaults and environment)"
	}
	timeout := "none"
	if d := cfg.RequestTimeout(); d > 0 {
		timeout = d.String()
	}
	return [][2]string{
		{"Version", fmt.Sprintf("%s (%s, %s)", config.Version, config.GitCommit, config.BuildTime)},
		{"Config file", source},
		{"Backend URL", cfg.BackendURL()},
		{"Agent port", strconv.Itoa(cfg.Port())},
		{"Data dir", cfg.DataDir()},
		{"Database", cfg.DBPath()},
		{"Downloads", cfg.DownloadsDir()},
		{"Archive name", cfg.ArchiveName()},
		{"Preview debounce", cfg.Debounce().String()},
		{"Progress grace", cfg.ProgressGrace().String()},
		{"Request timeout", timeout},
		{"Duration lookups", strconv.Itoa(cfg.LookupConcurrency())},
		{"Probe uploads", yesNo(cfg.ProbeUploads())},
		{"Headless", yesNo(cfg.Headless())},
		{"Log", cfg.LogLevel() + " / " + cfg.LogFormat()},
	}
}
