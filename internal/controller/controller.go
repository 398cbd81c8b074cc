// Package controller owns the state of one clip extraction session and runs
// every workflow step against the backend. Visual layers subscribe to its
// events and render View snapshots; they never hold state of their own.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/debounce"
	"github.com/clipdesk/clipdesk/internal/history"
	"github.com/clipdesk/clipdesk/internal/logging"
	"github.com/clipdesk/clipdesk/internal/probe"
	"github.com/clipdesk/clipdesk/internal/session"
)

var (
	ErrNoVideo         = errors.New("no video uploaded")
	ErrNothingSelected = errors.New("no clips selected")
	ErrBusy            = errors.New("processing already in progress")
)

const (
	DefaultDebounce          = 500 * time.Millisecond
	DefaultProgressGrace     = 2 * time.Second
	DefaultArchiveName       = "selected_gifs.zip"
	DefaultLookupConcurrency = 4
	DefaultRetryDelay        = 100 * time.Millisecond

	// NoProgressGrace hides the indicator as soon as processing succeeds.
	NoProgressGrace time.Duration = -1
)

// User-facing alert messages.
const (
	msgUploadFailed   = "Upload failed. Please try again."
	msgProcessFailed  = "Processing failed. Please try again."
	msgDownloadFailed = "Failed to download GIFs. Please try again."
)

// Options configures a Controller. Backend is required; History, Prober and
// Alerter are optional.
type Options struct {
	Backend           backend.Service
	History           history.Repository
	Prober            probe.Prober
	Alerter           Alerter
	Logger            *slog.Logger
	Debounce          time.Duration
	ProgressGrace     time.Duration
	ArchiveName       string
	LookupConcurrency int
	RetryDelay        time.Duration
}

// StepProgress is the state of one named progress bar.
type StepProgress struct {
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
	State    string  `json:"state"`
}

// Controller is safe for concurrent use.
type Controller struct {
	backend backend.Service
	history history.Repository
	prober  probe.Prober
	alerter Alerter
	logger  *slog.Logger

	archiveName string
	lookupLimit int
	grace       time.Duration
	retryDelay  time.Duration

	debouncer *debounce.Debouncer
	listeners listeners

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	session       *session.Session
	movements     *session.Movements
	board         *clips.Board
	videoPath     string
	uploading     bool
	uploadPercent float64
	processing    bool
	indicator     bool
	processGen    int
	progress      []StepProgress
	previews      map[string]*backend.Media
	previewSeq    map[string]int64
	downloading   bool
	lastArchive   string
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ProgressGrace == 0 {
		opts.ProgressGrace = DefaultProgressGrace
	}
	if opts.ProgressGrace < 0 {
		opts.ProgressGrace = 0
	}
	if opts.ArchiveName == "" {
		opts.ArchiveName = DefaultArchiveName
	}
	if opts.LookupConcurrency <= 0 {
		opts.LookupConcurrency = DefaultLookupConcurrency
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		backend:     opts.Backend,
		history:     opts.History,
		prober:      opts.Prober,
		alerter:     opts.Alerter,
		logger:      logging.WithComponent(opts.Logger, "controller"),
		archiveName: opts.ArchiveName,
		lookupLimit: opts.LookupConcurrency,
		grace:       opts.ProgressGrace,
		retryDelay:  opts.RetryDelay,
		debouncer:   debounce.New(opts.Debounce),
		ctx:         ctx,
		cancel:      cancel,
		session:     session.New(history.NewID()),
		movements:   &session.Movements{},
		board:       clips.NewBoard(),
		previews:    make(map[string]*backend.Media),
		previewSeq:  make(map[string]int64),
	}
}

// Subscribe registers fn for every future event and returns a function that
// removes it. fn runs on the goroutine that caused the change and must not
// block.
func (c *Controller) Subscribe(fn func(Event)) func() {
	return c.listeners.add(fn)
}

// Wait blocks until background processing, duration lookups and grace
// timers finish.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels pending previews and in-flight background work.
func (c *Controller) Close() {
	c.debouncer.Stop()
	c.cancel()
	c.wg.Wait()
}

// Upload sends the video at path to the backend and binds the session to
// the returned id. A later successful upload starts a new session.
func (c *Controller) Upload(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	if !backend.IsSupportedVideo(name) {
		return "", fmt.Errorf("%w: %s", backend.ErrUnsupportedFormat, name)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}

	var probed *probe.Result
	if c.prober != nil {
		if probed, err = c.prober.Probe(path); err != nil {
			c.logger.Warn("local probe failed, uploading anyway", "path", logging.SanitizePath(path), "error", err)
		}
	}

	c.mu.Lock()
	c.uploading = true
	c.uploadPercent = 0
	c.mu.Unlock()
	c.listeners.emit(Event{Type: EventUploadProgress, Total: stat.Size()})

	videoID, err := c.backend.Upload(ctx, name, f, stat.Size(), func(sent, total int64) {
		pct := 100.0
		if total > 0 {
			pct = float64(sent) / float64(total) * 100
		}
		c.mu.Lock()
		c.uploadPercent = pct
		c.mu.Unlock()
		c.listeners.emit(Event{Type: EventUploadProgress, Sent: sent, Total: total, Percent: pct})
	})
	if err != nil {
		c.mu.Lock()
		c.uploading = false
		c.uploadPercent = 0
		c.mu.Unlock()
		c.alert(msgUploadFailed, err)
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	sess := session.New(history.NewID())
	if err := sess.SetVideo(videoID, name); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	c.mu.Lock()
	c.session = sess
	c.videoPath = abs
	c.uploading = false
	c.uploadPercent = 100
	c.mu.Unlock()

	c.logger.Info("video uploaded", "file", name, "video_id", videoID)
	c.record(func(ctx context.Context, repo history.Repository) error {
		hs := &history.Session{
			ID:        sess.ID(),
			VideoID:   videoID,
			Filename:  name,
			SizeBytes: stat.Size(),
			Status:    history.SessionStatusUploaded,
			CreatedAt: sess.CreatedAt(),
		}
		if probed != nil {
			hs.DurationS = probed.Duration
		}
		return repo.CreateSession(ctx, hs)
	})
	c.listeners.emit(Event{Type: EventUploaded, VideoID: videoID, Path: name})
	return videoID, nil
}

// AddMovement appends an empty movement entry and returns its index.
func (c *Controller) AddMovement() int {
	return c.movements.Add()
}

// SetMovement replaces the text of entry i.
func (c *Controller) SetMovement(i int, text string) error {
	return c.movements.Set(i, text)
}

// processRun is one claimed processing request.
type processRun struct {
	sess    *session.Session
	videoID string
	labels  []string
	gen     int
}

// Process submits the non-blank movement labels and renders the result.
// Live progress is streamed for the duration of the request. The indicator
// stays visible for the grace delay after success.
func (c *Controller) Process(ctx context.Context) (*backend.ProcessResponse, error) {
	run, err := c.beginProcess()
	if err != nil {
		return nil, err
	}
	return c.runProcess(ctx, run)
}

// StartProcess claims the processing slot and runs Process in the
// background under the controller's lifetime. ErrNoVideo and ErrBusy are
// returned before anything starts; later failures surface as events.
func (c *Controller) StartProcess() error {
	run, err := c.beginProcess()
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.runProcess(c.ctx, run); err != nil {
			c.logger.Debug("background processing ended", "video_id", run.videoID, "error", err)
		}
	}()
	return nil
}

func (c *Controller) beginProcess() (*processRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	videoID, ok := c.session.VideoID()
	if !ok {
		return nil, ErrNoVideo
	}
	if c.processing {
		return nil, ErrBusy
	}
	c.processing = true
	c.indicator = true
	c.processGen++
	c.progress = nil
	return &processRun{
		sess:    c.session,
		videoID: videoID,
		labels:  c.movements.Labels(),
		gen:     c.processGen,
	}, nil
}

func (c *Controller) runProcess(ctx context.Context, run *processRun) (*backend.ProcessResponse, error) {
	sess, videoID, labels, gen := run.sess, run.videoID, run.labels, run.gen

	logger := logging.WithVideoID(c.logger, videoID)
	c.listeners.emit(Event{Type: EventProcessingStarted, VideoID: videoID, Count: len(labels)})
	c.record(func(ctx context.Context, repo history.Repository) error {
		return repo.UpdateSessionStatus(ctx, sess.ID(), history.SessionStatusProcessing, "")
	})

	streamCtx, closeStream := context.WithCancel(ctx)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		err := c.backend.StreamProgress(streamCtx, videoID, func(ev backend.ProgressEvent) {
			c.onProgress(gen, ev)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("progress stream ended", "error", err)
		}
	}()

	resp, err := c.backend.Process(ctx, videoID, labels)
	closeStream()
	<-streamDone

	if err != nil {
		c.mu.Lock()
		c.processing = false
		c.indicator = false
		c.mu.Unlock()

		c.record(func(ctx context.Context, repo history.Repository) error {
			return repo.UpdateSessionStatus(ctx, sess.ID(), history.SessionStatusFailed, err.Error())
		})
		c.alert(msgProcessFailed, err)
		c.listeners.emit(Event{Type: EventProcessingFinished, VideoID: videoID, Error: err.Error()})
		return nil, fmt.Errorf("process video %s: %w", videoID, err)
	}

	c.Render(resp.Movements)

	c.record(func(ctx context.Context, repo history.Repository) error {
		if err := repo.UpdateSessionResult(ctx, sess.ID(), labels, resp.Movements.SegmentCount()); err != nil {
			return err
		}
		return repo.UpdateSessionStatus(ctx, sess.ID(), history.SessionStatusProcessed, "")
	})

	c.mu.Lock()
	c.processing = false
	c.mu.Unlock()
	c.hideIndicator(gen, videoID)

	return resp, nil
}

func (c *Controller) onProgress(gen int, ev backend.ProgressEvent) {
	state := "processing"
	if ev.Completed() {
		state = "completed"
	}

	c.mu.Lock()
	if gen != c.processGen {
		c.mu.Unlock()
		return
	}
	found := false
	for i := range c.progress {
		if c.progress[i].Step == ev.Step {
			c.progress[i].Progress = ev.Progress
			c.progress[i].State = state
			found = true
			break
		}
	}
	if !found {
		c.progress = append(c.progress, StepProgress{Step: ev.Step, Progress: ev.Progress, State: state})
	}
	c.mu.Unlock()

	c.listeners.emit(Event{Type: EventProgress, Step: ev.Step, Percent: ev.Progress, State: state})
}

func (c *Controller) hideIndicator(gen int, videoID string) {
	hide := func() {
		c.mu.Lock()
		if gen != c.processGen || !c.indicator {
			c.mu.Unlock()
			return
		}
		c.indicator = false
		c.mu.Unlock()
		c.listeners.emit(Event{Type: EventProcessingFinished, VideoID: videoID})
	}

	if c.grace == 0 {
		hide()
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTimer(c.grace)
		defer t.Stop()
		select {
		case <-t.C:
			hide()
		case <-c.ctx.Done():
		}
	}()
}

// alert logs err and surfaces message to the user.
func (c *Controller) alert(message string, err error) {
	c.logger.Error(message, "error", err)
	if c.alerter != nil {
		c.alerter.Alert(message)
	}
	ev := Event{Type: EventAlert, Message: message}
	if err != nil {
		ev.Error = err.Error()
	}
	c.listeners.emit(ev)
}

// record writes to the history store when one is configured. Failures are
// logged and never fail the workflow step.
func (c *Controller) record(fn func(ctx context.Context, repo history.Repository) error) {
	if c.history == nil {
		return
	}
	if err := fn(c.ctx, c.history); err != nil {
		c.logger.Warn("failed to record history", "error", err)
	}
}
