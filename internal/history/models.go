// Package history records upload sessions and downloaded archives in the
// local store.
package history

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionStatusUploaded    = "uploaded"
	SessionStatusProcessing  = "processing"
	SessionStatusProcessed   = "processed"
	SessionStatusFailed      = "failed"
	SessionStatusInterrupted = "interrupted"
)

type Session struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	DurationS float64   `json:"duration_s"`
	Status    string    `json:"status"`
	Movements []string  `json:"movements"`
	ClipCount int       `json:"clip_count"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Download struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	ClipCount int       `json:"clip_count"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func NewID() string {
	return uuid.NewString()
}
