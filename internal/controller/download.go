package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/export"
	"github.com/clipdesk/clipdesk/internal/history"
)

// DownloadResult describes a saved archive.
type DownloadResult struct {
	Path      string `json:"path"`
	ClipCount int    `json:"clip_count"`
	SizeBytes int64  `json:"size_bytes"`
}

// DownloadSelected asks the backend to bundle the checked clips and saves
// the archive into dir. With nothing checked no request is sent.
func (c *Controller) DownloadSelected(ctx context.Context, dir string) (*DownloadResult, error) {
	c.mu.Lock()
	selections := c.board.Selections()
	sessionID := c.session.ID()
	c.mu.Unlock()

	if len(selections) == 0 {
		return nil, ErrNothingSelected
	}

	dest, err := export.OutputPath(dir, c.archiveName)
	if err != nil {
		return nil, c.downloadFailed(len(selections), err)
	}

	tmp, err := os.CreateTemp(dir, ".clipdesk-*.part")
	if err != nil {
		return nil, c.downloadFailed(len(selections), fmt.Errorf("create archive file: %w", err))
	}

	c.mu.Lock()
	c.downloading = true
	c.mu.Unlock()
	c.listeners.emit(Event{Type: EventDownloadStarted, Count: len(selections)})

	n, err := c.backend.DownloadSelected(ctx, selections, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close archive file: %w", cerr)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}

	c.mu.Lock()
	c.downloading = false
	if err == nil {
		c.lastArchive = dest
	}
	c.mu.Unlock()

	if err != nil {
		os.Remove(tmp.Name())
		return nil, c.downloadFailed(len(selections), err)
	}

	c.logger.Info("archive saved", "path", dest, "clip_count", len(selections), "size_bytes", n)
	c.record(func(ctx context.Context, repo history.Repository) error {
		return repo.CreateDownload(ctx, &history.Download{
			ID:        history.NewID(),
			SessionID: sessionID,
			Path:      dest,
			ClipCount: len(selections),
			SizeBytes: n,
		})
	})
	c.listeners.emit(Event{Type: EventDownloadFinished, Path: dest, Count: len(selections), Total: n})

	return &DownloadResult{Path: dest, ClipCount: len(selections), SizeBytes: n}, nil
}

func (c *Controller) downloadFailed(count int, err error) error {
	c.alert(msgDownloadFailed, err)
	c.listeners.emit(Event{Type: EventDownloadFinished, Count: count, Error: err.Error()})
	return fmt.Errorf("download selected: %w", err)
}

// ExportEDL writes an edit decision list of the checked clips against the
// uploaded source video. Each entry covers the trimmed window mapped back
// onto the source timeline.
func (c *Controller) ExportEDL(dir, title string) (*export.Result, error) {
	c.mu.Lock()
	selected := c.board.SelectedClips()
	media := c.videoPath
	filename := c.session.Filename()
	c.mu.Unlock()

	if len(selected) == 0 {
		return nil, ErrNothingSelected
	}
	if media == "" {
		return nil, ErrNoVideo
	}
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	entries := make([]export.Entry, 0, len(selected))
	for _, cl := range selected {
		entries = append(entries, edlEntry(cl, media))
	}

	res, err := export.WriteEDL(dir, title, entries, export.DefaultFrameRate)
	if err != nil {
		return nil, err
	}
	c.logger.Info("edl exported", "path", res.OutputPath, "clip_count", res.ClipCount)
	return res, nil
}

func edlEntry(cl clips.Clip, media string) export.Entry {
	e := export.Entry{
		ClipName:  cl.Name,
		MediaPath: media,
		Start:     cl.SourceStart,
		End:       cl.SourceEnd,
	}
	if cl.Enabled() && !cl.IsFullTrim() {
		e.Start = cl.SourceStart + cl.Start
		e.End = min(cl.SourceStart+cl.End, cl.SourceEnd)
	}
	return e
}
