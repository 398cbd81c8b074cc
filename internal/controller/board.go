package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/logging"
)

// Render replaces the board with movements and starts the duration lookup
// of every clip in the background.
func (c *Controller) Render(movements backend.Movements) []clips.Group {
	c.mu.Lock()
	for _, old := range c.board.Clips() {
		c.debouncer.Cancel(old.ID)
	}
	rendered := c.board.Render(movements, c.backend.ClipURL)
	c.previews = make(map[string]*backend.Media)
	c.previewSeq = make(map[string]int64)
	ids := make([]string, len(rendered))
	for i, cl := range rendered {
		ids[i] = cl.ID
	}
	groups := c.board.Snapshot()
	c.mu.Unlock()

	c.logger.Info("board rendered", "movements", len(movements), "clips", len(ids))
	c.listeners.emit(Event{Type: EventBoardRendered, Count: len(ids)})
	c.listeners.emit(Event{Type: EventSelectionChanged, Count: 0, Enabled: false})

	if len(ids) > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.loadAll(ids)
		}()
	}
	return groups
}

func (c *Controller) loadAll(ids []string) {
	var g errgroup.Group
	g.SetLimit(c.lookupLimit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			// Failures are per clip and already logged.
			_ = c.LoadClip(c.ctx, id)
			return nil
		})
	}
	g.Wait()
}

// LoadClip looks up the clip's duration and enables its trim controls. A
// failed lookup leaves the controls disabled. Results for a clip that was
// replaced by a later render are dropped.
func (c *Controller) LoadClip(ctx context.Context, id string) error {
	c.mu.Lock()
	cl, err := c.board.Get(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	path := cl.GifPath
	c.mu.Unlock()

	logger := logging.WithClipID(c.logger, id)
	info, lookupErr := c.backend.ClipInfo(ctx, path)

	c.mu.Lock()
	cl, err = c.board.Get(id)
	if err != nil {
		c.mu.Unlock()
		logger.Debug("dropping duration for replaced clip")
		return err
	}
	if lookupErr == nil {
		lookupErr = cl.SetDuration(info.Duration)
	}
	if lookupErr != nil {
		cl.MarkFailed()
	}
	ev := clipEvent(EventClipReady, cl)
	c.mu.Unlock()

	if lookupErr != nil {
		logger.Warn("failed to get clip duration", "gif_path", path, "error", lookupErr)
		ev.Type = EventClipFailed
		ev.Error = lookupErr.Error()
		c.listeners.emit(ev)
		return fmt.Errorf("clip info %s: %w", path, lookupErr)
	}
	c.listeners.emit(ev)
	return nil
}

// Clip returns a copy of the clip record for id.
func (c *Controller) Clip(id string) (clips.Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, err := c.board.Get(id)
	if err != nil {
		return clips.Clip{}, err
	}
	return *cl, nil
}

// FindClip returns a copy of the clip with the given display name.
func (c *Controller) FindClip(name string) (clips.Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.board.FindByName(name)
	if !ok {
		return clips.Clip{}, false
	}
	return *cl, true
}

// SetTrimStart moves the start control of clip id.
func (c *Controller) SetTrimStart(id string, v float64) (clips.Clip, error) {
	return c.setTrim(id, func(cl *clips.Clip) error { return cl.SetStart(v) })
}

// SetTrimEnd moves the end control of clip id.
func (c *Controller) SetTrimEnd(id string, v float64) (clips.Clip, error) {
	return c.setTrim(id, func(cl *clips.Clip) error { return cl.SetEnd(v) })
}

// SetTrim sets both controls, end first so start never exceeds it.
func (c *Controller) SetTrim(id string, start, end float64) (clips.Clip, error) {
	return c.setTrim(id, func(cl *clips.Clip) error {
		if err := cl.SetEnd(end); err != nil {
			return err
		}
		return cl.SetStart(start)
	})
}

func (c *Controller) setTrim(id string, apply func(*clips.Clip) error) (clips.Clip, error) {
	c.mu.Lock()
	cl, err := c.board.Get(id)
	if err != nil {
		c.mu.Unlock()
		return clips.Clip{}, err
	}
	if err := apply(cl); err != nil {
		c.mu.Unlock()
		return clips.Clip{}, err
	}

	previewReset := false
	if cl.IsFullTrim() {
		c.debouncer.Cancel(id)
		c.previewSeq[id]++
		delete(c.previews, id)
		previewReset = cl.Preview != clips.PreviewStatic
		cl.Preview = clips.PreviewStatic
		cl.PreviewURL = ""
	} else {
		c.debouncer.Trigger(id, func() { c.refreshPreview(id) })
	}
	snap := *cl
	c.mu.Unlock()

	c.listeners.emit(Event{Type: EventTrimChanged, Clip: &snap, Message: snap.TrimLabel()})
	if previewReset {
		c.listeners.emit(clipEvent(EventPreviewChanged, &snap))
	}
	return snap, nil
}

// refreshPreview runs once the trim of id has been quiet for the debounce
// interval.
func (c *Controller) refreshPreview(id string) {
	c.mu.Lock()
	cl, err := c.board.Get(id)
	if err != nil || cl.IsFullTrim() {
		c.mu.Unlock()
		return
	}
	url := backend.PreviewURL(cl.BaseURL, cl.Start, cl.End, time.Now().UnixMilli())
	c.previewSeq[id]++
	seq := c.previewSeq[id]
	cl.Preview = clips.PreviewLoading
	cl.PreviewURL = url
	ev := clipEvent(EventPreviewChanged, cl)
	c.mu.Unlock()
	c.listeners.emit(ev)

	logger := logging.WithClipID(c.logger, id)
	media, fetchErr := c.fetchPreview(c.ctx, url)

	c.mu.Lock()
	cl, err = c.board.Get(id)
	if err != nil || c.previewSeq[id] != seq {
		c.mu.Unlock()
		return
	}
	if fetchErr != nil {
		cl.Preview = clips.PreviewStatic
		cl.PreviewURL = ""
		delete(c.previews, id)
	} else {
		cl.Preview = clips.PreviewPlaying
		c.previews[id] = media
	}
	ev = clipEvent(EventPreviewChanged, cl)
	c.mu.Unlock()

	if fetchErr != nil {
		logger.Warn("preview failed to load", "url", url, "error", fetchErr)
		ev.Error = fetchErr.Error()
	}
	c.listeners.emit(ev)
}

// fetchPreview retries once after the retry delay when the first attempt
// fails with a retryable error.
func (c *Controller) fetchPreview(ctx context.Context, url string) (*backend.Media, error) {
	media, err := c.backend.FetchClip(ctx, url)
	if err == nil {
		return media, nil
	}

	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
		return nil, err
	}

	c.logger.Debug("preview fetch failed, retrying", "url", url, "error", err)
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.backend.FetchClip(ctx, url)
}

// Preview returns the cached preview of clip id, if one is playing.
func (c *Controller) Preview(id string) (*backend.Media, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.previews[id]
	return m, ok
}

// ClipMedia returns the playing preview of clip id, or the static clip
// fetched from the backend.
func (c *Controller) ClipMedia(ctx context.Context, id string) (*backend.Media, error) {
	c.mu.Lock()
	cl, err := c.board.Get(id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if m, ok := c.previews[id]; ok {
		c.mu.Unlock()
		return m, nil
	}
	url := cl.ImageURL()
	c.mu.Unlock()

	return c.backend.FetchClip(ctx, url)
}

// SetSelected toggles the download checkbox of clip id.
func (c *Controller) SetSelected(id string, selected bool) error {
	c.mu.Lock()
	if err := c.board.SetSelected(id, selected); err != nil {
		c.mu.Unlock()
		return err
	}
	count := c.board.SelectedCount()
	c.mu.Unlock()

	c.listeners.emit(Event{Type: EventSelectionChanged, Count: count, Enabled: count > 0})
	return nil
}
