// Package session holds the per-page state of one clip extraction session:
// the uploaded video's identifier and the movement labels typed so far.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrLabelIndex = errors.New("movement index out of range")

// Session is scoped to one upload lifetime. The video id is set once after a
// successful upload and never cleared; starting over means a new Session.
type Session struct {
	mu        sync.RWMutex
	id        string
	videoID   string
	filename  string
	createdAt time.Time
}

// New creates an empty session.
func New(id string) *Session {
	return &Session{id: id, createdAt: time.Now().UTC()}
}

// ID returns the local identifier of the session.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// SetVideo records the uploaded video. It fails if a video is already set.
func (s *Session) SetVideo(videoID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.videoID != "" {
		return fmt.Errorf("session already bound to video %s", s.videoID)
	}
	s.videoID = videoID
	s.filename = filename
	return nil
}

// VideoID returns the uploaded video id and whether one is set.
func (s *Session) VideoID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoID, s.videoID != ""
}

// Filename returns the name of the uploaded file, if any.
func (s *Session) Filename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filename
}

// Movements is the ordered list of movement label entries.
type Movements struct {
	mu      sync.RWMutex
	entries []string
}

// Add appends one empty entry and returns its index. Entries keep insertion
// order; the add affordance stays after the last entry.
func (m *Movements) Add() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, "")
	return len(m.entries) - 1
}

// Set replaces the text of entry i. No validation happens here; blanks are
// filtered by Labels.
func (m *Movements) Set(i int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.entries) {
		return fmt.Errorf("%w: %d", ErrLabelIndex, i)
	}
	m.entries[i] = text
	return nil
}

// Len returns the number of entries, blank or not.
func (m *Movements) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Entries returns a copy of the raw entries.
func (m *Movements) Entries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.entries...)
}

// Labels returns the trimmed, non-empty entries in order.
func (m *Movements) Labels() []string {
	return CleanLabels(m.Entries())
}

// CleanLabels trims each entry and drops empty ones.
func CleanLabels(entries []string) []string {
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		if v := strings.TrimSpace(e); v != "" {
			labels = append(labels, v)
		}
	}
	return labels
}
