package api

import (
	"github.com/clipdesk/clipdesk/internal/history"
)

type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UptimeS    int64  `json:"uptime_s"`
	BackendURL string `json:"backend_url"`
}

type UploadRequest struct {
	Path string `json:"path"`
}

type UploadResponse struct {
	VideoID string `json:"video_id"`
}

type AddMovementResponse struct {
	Index int `json:"index"`
}

type SetMovementRequest struct {
	Label string `json:"label"`
}

type ProcessAcceptedResponse struct {
	Status    string   `json:"status"`
	VideoID   string   `json:"video_id"`
	Movements []string `json:"movements"`
}

// TrimRequest moves either control or both. Omitted fields are unchanged.
type TrimRequest struct {
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

type TrimResponse struct {
	ID         string  `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Max        float64 `json:"max"`
	Label      string  `json:"label"`
	Preview    string  `json:"preview"`
	PreviewURL string  `json:"preview_url,omitempty"`
}

type SelectRequest struct {
	Selected bool `json:"selected"`
}

type SelectResponse struct {
	SelectedCount   int  `json:"selected_count"`
	DownloadEnabled bool `json:"download_enabled"`
}

type DownloadRequest struct {
	OutputDir string `json:"output_dir,omitempty"`
}

type DownloadResponse struct {
	Path       string `json:"path"`
	ClipCount  int    `json:"clip_count"`
	SizeBytes  int64  `json:"size_bytes"`
	Size       string `json:"size"`
	ArchiveURL string `json:"archive_url,omitempty"`
}

type ExportRequest struct {
	OutputDir string `json:"output_dir,omitempty"`
	Title     string `json:"title,omitempty"`
}

type HistoryResponse struct {
	Sessions  []*history.Session  `json:"sessions"`
	Downloads []*history.Download `json:"downloads"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
