package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/controller"
	"github.com/clipdesk/clipdesk/internal/export"
	"github.com/clipdesk/clipdesk/internal/session"
)

const historyLimit = 50

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())

		r.Get("/clips/{id}/preview", clipPreviewHandler(cfg))
		r.Head("/clips/{id}/preview", clipPreviewHandler(cfg))
		r.Get("/archives/{name}", archiveHandler(cfg))
		r.Head("/archives/{name}", archiveHandler(cfg))
		r.Get("/events", eventsHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/state", stateHandler(cfg))
		r.Post("/upload", uploadHandler(cfg))
		r.Post("/movements", addMovementHandler(cfg))
		r.Put("/movements/{index}", setMovementHandler(cfg))
		r.Post("/process", processHandler(cfg))
		r.Put("/clips/{id}/trim", trimHandler(cfg))
		r.Put("/clips/{id}/selected", selectHandler(cfg))
		r.Post("/download", downloadHandler(cfg))
		r.Post("/export/edl", exportHandler(cfg))
		r.Get("/history", historyHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:     "ok",
			Version:    cfg.Version,
			UptimeS:    int64(time.Since(cfg.StartTime).Seconds()),
			BackendURL: cfg.BackendURL,
		})
	}
}

func stateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Workflow.View())
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		videoID, err := cfg.Workflow.Upload(r.Context(), req.Path)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, UploadResponse{VideoID: videoID})
	}
}

func addMovementHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusCreated, AddMovementResponse{Index: cfg.Workflow.AddMovement()})
	}
}

func setMovementHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "index must be an integer", "BAD_REQUEST")
			return
		}

		var req SetMovementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.Workflow.SetMovement(index, req.Label); err != nil {
			writeWorkflowError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// processHandler starts processing in the background. Progress and the
// outcome are delivered on /events.
func processHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Workflow.StartProcess(); err != nil {
			writeWorkflowError(w, err)
			return
		}

		view := cfg.Workflow.View()
		WriteJSON(w, http.StatusAccepted, ProcessAcceptedResponse{
			Status:    "accepted",
			VideoID:   view.VideoID,
			Movements: session.CleanLabels(view.Movements),
		})
	}
}

func trimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req TrimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var (
			cl  clips.Clip
			err error
		)
		switch {
		case req.Start != nil && req.End != nil:
			cl, err = cfg.Workflow.SetTrim(id, *req.Start, *req.End)
		case req.Start != nil:
			cl, err = cfg.Workflow.SetTrimStart(id, *req.Start)
		case req.End != nil:
			cl, err = cfg.Workflow.SetTrimEnd(id, *req.End)
		default:
			WriteError(w, http.StatusBadRequest, "start or end is required", "BAD_REQUEST")
			return
		}
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, TrimResponse{
			ID:         cl.ID,
			Start:      cl.Start,
			End:        cl.End,
			Max:        cl.Max(),
			Label:      cl.TrimLabel(),
			Preview:    string(cl.Preview),
			PreviewURL: cl.PreviewURL,
		})
	}
}

func selectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.Workflow.SetSelected(chi.URLParam(r, "id"), req.Selected); err != nil {
			writeWorkflowError(w, err)
			return
		}

		view := cfg.Workflow.View()
		WriteJSON(w, http.StatusOK, SelectResponse{
			SelectedCount:   view.SelectedCount,
			DownloadEnabled: view.DownloadEnabled,
		})
	}
}

func clipPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		m, err := cfg.Workflow.ClipMedia(r.Context(), id)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		if err := cfg.MediaServer.ServeBytes(w, r, m.ContentType, m.Data); err != nil {
			cfg.Logger.Error("preview serve error", "error", err, "clip_id", id)
		}
	}
}

func archiveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			WriteError(w, http.StatusBadRequest, "invalid archive name", "BAD_REQUEST")
			return
		}

		if err := cfg.MediaServer.ServeFile(w, r, filepath.Join(cfg.DownloadsDir, name)); err != nil {
			cfg.Logger.Error("archive serve error", "error", err, "name", name)
		}
	}
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DownloadRequest
		if err := decodeOptional(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		dir := req.OutputDir
		if dir == "" {
			dir = cfg.DownloadsDir
		}

		res, err := cfg.Workflow.DownloadSelected(r.Context(), dir)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		resp := DownloadResponse{
			Path:      res.Path,
			ClipCount: res.ClipCount,
			SizeBytes: res.SizeBytes,
			Size:      humanize.Bytes(uint64(res.SizeBytes)),
		}
		if filepath.Dir(res.Path) == filepath.Clean(cfg.DownloadsDir) {
			resp.ArchiveURL = "/archives/" + filepath.Base(res.Path)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := decodeOptional(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		dir := req.OutputDir
		if dir == "" {
			dir = cfg.DownloadsDir
		}

		res, err := cfg.Workflow.ExportEDL(dir, req.Title)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessions, err := cfg.Repository.ListSessions(ctx, historyLimit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sessions", "INTERNAL_ERROR")
			return
		}
		downloads, err := cfg.Repository.ListDownloads(ctx, "", historyLimit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list downloads", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, HistoryResponse{Sessions: sessions, Downloads: downloads})
	}
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, controller.ErrNoVideo):
		WriteError(w, http.StatusConflict, err.Error(), "NO_VIDEO")
	case errors.Is(err, controller.ErrBusy):
		WriteError(w, http.StatusConflict, err.Error(), "BUSY")
	case errors.Is(err, controller.ErrNothingSelected):
		WriteError(w, http.StatusBadRequest, err.Error(), "NOTHING_SELECTED")
	case errors.Is(err, clips.ErrUnknownClip), errors.Is(err, session.ErrLabelIndex):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, clips.ErrControlsDisabled):
		WriteError(w, http.StatusConflict, err.Error(), "CONTROLS_DISABLED")
	case errors.Is(err, backend.ErrUnsupportedFormat):
		WriteError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_FORMAT")
	case errors.Is(err, fs.ErrNotExist):
		WriteError(w, http.StatusBadRequest, err.Error(), "NOT_FOUND")
	case errors.Is(err, export.ErrInvalidOutputDir):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.As(err, &apiErr):
		WriteError(w, http.StatusBadGateway, err.Error(), "BACKEND_ERROR")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
