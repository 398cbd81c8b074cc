package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/clipdesk/clipdesk/internal/config"
	"github.com/clipdesk/clipdesk/internal/db"
	"github.com/clipdesk/clipdesk/internal/history"
	"github.com/clipdesk/clipdesk/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = os.Getenv(config.EnvConfigFile)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		for _, dir := range []string{cfg.DataDir(), cfg.DownloadsDir()} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				c.configErr = fmt.Errorf("create %s: %w", dir, err)
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds a logger for a command. Interactive commands log as text so
// they do not interleave JSON with progress bars.
func (c *commandContext) logger(w io.Writer, format string) *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.Discard()
	}
	if format == "" {
		format = cfg.LogFormat()
	}
	return logging.NewLogger(cfg.LogLevel(), format, w)
}

// openHistory opens the local store. The caller closes the returned DB.
func (c *commandContext) openHistory(logger *slog.Logger) (*db.DB, *history.SQLiteRepository, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, history.NewRepository(database.Conn()), nil
}

func ensureAuthToken(ctx context.Context, repo history.Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, authTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, authTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
