// Package clips holds the per-segment view-model records the controller owns.
// Any visual layer is a projection of these records.
package clips

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/clipdesk/clipdesk/internal/backend"
)

var (
	ErrControlsDisabled = errors.New("trim controls disabled until clip duration is known")
	ErrUnknownClip      = errors.New("unknown clip")
	ErrInvalidDuration  = errors.New("invalid clip duration")
)

// Placeholder bounds of the trim controls before the duration is known.
const (
	placeholderMax = 1.0
	fullTrimLabel  = "Full GIF"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

type PreviewState string

const (
	PreviewStatic  PreviewState = "static"
	PreviewLoading PreviewState = "loading"
	PreviewPlaying PreviewState = "playing"
)

// Clip is one rendered segment.
type Clip struct {
	ID          string       `json:"id"`
	Movement    string       `json:"movement"`
	Index       int          `json:"index"`
	Name        string       `json:"name"`
	SourceStart float64      `json:"source_start"`
	SourceEnd   float64      `json:"source_end"`
	GifPath     string       `json:"gif_path"`
	BaseURL     string       `json:"base_url"`
	Duration    float64      `json:"duration"`
	Start       float64      `json:"start"`
	End         float64      `json:"end"`
	Status      Status       `json:"status"`
	Selected    bool         `json:"selected"`
	Preview     PreviewState `json:"preview"`
	PreviewURL  string       `json:"preview_url,omitempty"`
}

func newClip(id, movement string, index int, seg backend.Segment, baseURL string) *Clip {
	return &Clip{
		ID:          id,
		Movement:    movement,
		Index:       index,
		Name:        DisplayName(movement, index),
		SourceStart: seg.StartTime,
		SourceEnd:   seg.EndTime,
		GifPath:     seg.GifPath,
		BaseURL:     backend.BaseURL(baseURL),
		Start:       0,
		End:         placeholderMax,
		Status:      StatusPending,
		Preview:     PreviewStatic,
	}
}

// DisplayName derives a clip name from its movement and 0-based index:
// the first space of the movement becomes an underscore, then a 1-based
// two-digit index is appended.
func DisplayName(movement string, index int) string {
	return fmt.Sprintf("%s_%02d", strings.Replace(movement, " ", "_", 1), index+1)
}

// Enabled reports whether the trim controls accept input.
func (c *Clip) Enabled() bool {
	return c.Status == StatusReady
}

// Max returns the upper bound of both trim controls.
func (c *Clip) Max() float64 {
	if !c.Enabled() {
		return placeholderMax
	}
	return c.Duration
}

// SetDuration enables the controls with bounds [0, d] and a full trim.
func (c *Clip) SetDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	c.Duration = d
	c.Start = 0
	c.End = d
	c.Status = StatusReady
	return nil
}

// MarkFailed leaves the controls disabled after a failed duration lookup.
func (c *Clip) MarkFailed() {
	c.Status = StatusFailed
}

// SetStart moves the start control. If it passes end, end follows.
func (c *Clip) SetStart(v float64) error {
	if !c.Enabled() {
		return ErrControlsDisabled
	}
	v = c.clamp(v)
	c.Start = v
	if v > c.End {
		c.End = v
	}
	return nil
}

// SetEnd moves the end control. If it passes below start, start follows.
func (c *Clip) SetEnd(v float64) error {
	if !c.Enabled() {
		return ErrControlsDisabled
	}
	v = c.clamp(v)
	c.End = v
	if v < c.Start {
		c.Start = v
	}
	return nil
}

func (c *Clip) clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > c.Duration {
		return c.Duration
	}
	return v
}

// IsFullTrim reports whether the trim spans the whole clip.
func (c *Clip) IsFullTrim() bool {
	return c.Start == 0 && c.End == c.Max()
}

// TrimLabel is the "Selected:" display for the current trim.
func (c *Clip) TrimLabel() string {
	if c.IsFullTrim() {
		return fullTrimLabel
	}
	return fmt.Sprintf("%.1fs - %.1fs", c.Start, c.End)
}

// OriginalLabel is the source-video time range display.
func (c *Clip) OriginalLabel() string {
	return fmt.Sprintf("Original: %.1fs - %.1fs", c.SourceStart, c.SourceEnd)
}

// ImageURL is the static clip image source.
func (c *Clip) ImageURL() string {
	return c.BaseURL
}

// Selection returns the download request entry for this clip. The URL is
// always the base clip URL, never a trimmed preview URL.
func (c *Clip) Selection() backend.Selection {
	return backend.Selection{
		URL:   backend.BaseURL(c.BaseURL),
		Start: c.Start,
		End:   c.End,
	}
}
