package controller

import (
	"sync"
	"time"

	"github.com/clipdesk/clipdesk/internal/clips"
)

type EventType string

const (
	EventUploadProgress     EventType = "upload_progress"
	EventUploaded           EventType = "uploaded"
	EventProcessingStarted  EventType = "processing_started"
	EventProgress           EventType = "progress"
	EventProcessingFinished EventType = "processing_finished"
	EventBoardRendered      EventType = "board_rendered"
	EventClipReady          EventType = "clip_ready"
	EventClipFailed         EventType = "clip_failed"
	EventTrimChanged        EventType = "trim_changed"
	EventPreviewChanged     EventType = "preview_changed"
	EventSelectionChanged   EventType = "selection_changed"
	EventDownloadStarted    EventType = "download_started"
	EventDownloadFinished   EventType = "download_finished"
	EventAlert              EventType = "alert"
)

// Event is a state change the visual layer reacts to. Only the fields
// relevant to Type are set.
type Event struct {
	Type    EventType   `json:"type"`
	Time    time.Time   `json:"time"`
	VideoID string      `json:"video_id,omitempty"`
	Clip    *clips.Clip `json:"clip,omitempty"`
	Step    string      `json:"step,omitempty"`
	State   string      `json:"state,omitempty"`
	Percent float64     `json:"percent"`
	Sent    int64       `json:"sent,omitempty"`
	Total   int64       `json:"total,omitempty"`
	Count   int         `json:"count"`
	Enabled bool        `json:"enabled"`
	Path    string      `json:"path,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Alerter surfaces blocking failure messages to the user.
type Alerter interface {
	Alert(message string)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(message string)

func (f AlerterFunc) Alert(message string) { f(message) }

type listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Event)
}

func (l *listeners) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	l.mu.RLock()
	fns := make([]func(Event), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func clipEvent(t EventType, c *clips.Clip) Event {
	cp := *c
	return Event{Type: t, Clip: &cp}
}
