package controller

import (
	"github.com/clipdesk/clipdesk/internal/clips"
)

// View is a point-in-time projection of the controller state.
type View struct {
	SessionID        string         `json:"session_id"`
	VideoID          string         `json:"video_id,omitempty"`
	Filename         string         `json:"filename,omitempty"`
	Uploading        bool           `json:"uploading"`
	UploadPercent    float64        `json:"upload_percent"`
	MovementsVisible bool           `json:"movements_visible"`
	Movements        []string       `json:"movements"`
	Processing       bool           `json:"processing"`
	Progress         []StepProgress `json:"progress"`
	Groups           []clips.Group  `json:"groups"`
	ClipCount        int            `json:"clip_count"`
	SelectedCount    int            `json:"selected_count"`
	DownloadEnabled  bool           `json:"download_enabled"`
	Downloading      bool           `json:"downloading"`
	LastArchive      string         `json:"last_archive,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	videoID, ok := c.session.VideoID()
	return View{
		SessionID:        c.session.ID(),
		VideoID:          videoID,
		Filename:         c.session.Filename(),
		Uploading:        c.uploading,
		UploadPercent:    c.uploadPercent,
		MovementsVisible: ok,
		Movements:        c.movements.Entries(),
		Processing:       c.indicator,
		Progress:         append([]StepProgress(nil), c.progress...),
		Groups:           c.board.Snapshot(),
		ClipCount:        c.board.Len(),
		SelectedCount:    c.board.SelectedCount(),
		DownloadEnabled:  c.board.DownloadEnabled(),
		Downloading:      c.downloading,
		LastArchive:      c.lastArchive,
	}
}

// Labels returns the movement labels Process would submit.
func (c *Controller) Labels() []string {
	return c.movements.Labels()
}
