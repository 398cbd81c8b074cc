// Package api is the localhost HTTP surface a thin UI uses to drive the
// controller.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/controller"
	"github.com/clipdesk/clipdesk/internal/export"
	"github.com/clipdesk/clipdesk/internal/history"
	"github.com/clipdesk/clipdesk/internal/media"
)

// Workflow is the controller surface the handlers drive.
type Workflow interface {
	View() controller.View
	Subscribe(fn func(controller.Event)) func()
	Upload(ctx context.Context, path string) (string, error)
	AddMovement() int
	SetMovement(i int, text string) error
	StartProcess() error
	Clip(id string) (clips.Clip, error)
	SetTrimStart(id string, v float64) (clips.Clip, error)
	SetTrimEnd(id string, v float64) (clips.Clip, error)
	SetTrim(id string, start, end float64) (clips.Clip, error)
	SetSelected(id string, selected bool) error
	ClipMedia(ctx context.Context, id string) (*backend.Media, error)
	DownloadSelected(ctx context.Context, dir string) (*controller.DownloadResult, error)
	ExportEDL(dir, title string) (*export.Result, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port         int
	Workflow     Workflow
	Repository   history.Repository
	MediaServer  *media.Server
	DownloadsDir string
	BackendURL   string
	Logger       *slog.Logger
	StartTime    time.Time
	Version      string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
