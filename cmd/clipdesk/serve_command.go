package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/clipdesk/clipdesk/internal/api"
	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/config"
	"github.com/clipdesk/clipdesk/internal/controller"
	"github.com/clipdesk/clipdesk/internal/logging"
	"github.com/clipdesk/clipdesk/internal/media"
	"github.com/clipdesk/clipdesk/internal/probe"
	"github.com/clipdesk/clipdesk/internal/ui"
)

const (
	authTokenKey    = api.AuthTokenKey
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local agent API and system tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), ctx, cfg, headless || cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	return cmd
}

func runServe(parent context.Context, cc *commandContext, cfg *config.EnvConfig, headless bool) error {
	if parent == nil {
		parent = context.Background()
	}
	startTime := time.Now()

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another clipdesk agent is already running for %s", cfg.DataDir())
	}
	defer lock.Unlock()

	logger := cc.logger(os.Stderr, "")
	logger.Info("starting clipdesk agent",
		"version", config.Version,
		"data_dir", cfg.DataDir(),
		"config", cfg.Source(),
	)

	database, repo, err := cc.openHistory(logger)
	if err != nil {
		return err
	}
	defer database.Close()

	authToken, err := ensureAuthToken(parent, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println(renderPairs([][2]string{
		{"clipdesk", config.Version},
		{"API URL", fmt.Sprintf("http://127.0.0.1:%d", cfg.Port())},
		{"Auth Token", authToken},
		{"Backend", cfg.BackendURL()},
		{"Downloads", cfg.DownloadsDir()},
	}))

	client := backend.NewHTTPClient(cfg.BackendURL(), cfg.RequestTimeout(), logger)

	var prober probe.Prober
	if cfg.ProbeUploads() {
		prober = probe.NewFFProbe(logger)
	}

	grace := cfg.ProgressGrace()
	if grace == 0 {
		grace = controller.NoProgressGrace
	}
	ctl := controller.New(controller.Options{
		Backend: client,
		History: repo,
		Prober:  prober,
		Alerter: controller.AlerterFunc(func(message string) {
			logger.Warn("alert", "message", message)
		}),
		Logger:            logger,
		Debounce:          cfg.Debounce(),
		ProgressGrace:     grace,
		ArchiveName:       cfg.ArchiveName(),
		LookupConcurrency: cfg.LookupConcurrency(),
	})
	defer ctl.Close()

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		Workflow:     ctl,
		Repository:   repo,
		MediaServer:  media.NewServer(logger),
		DownloadsDir: cfg.DownloadsDir(),
		BackendURL:   cfg.BackendURL(),
		Logger:       logger,
		StartTime:    startTime,
		Version:      config.Version,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			serveErr <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	quitCh := make(chan struct{})
	var tray *ui.Tray
	if headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Workflow:     ctl,
			DownloadsDir: cfg.DownloadsDir(),
			Logger:       logging.WithComponent(logger, "tray"),
			OnOpenDownloads: func() error {
				return openFolder(cfg.DownloadsDir())
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	select {
	case <-sigCtx.Done():
		logger.Info("received shutdown signal")
		if tray != nil {
			tray.Quit()
		}
	case <-quitCh:
	case err := <-serveErr:
		logger.Error("HTTP server error", "error", err)
		return err
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
