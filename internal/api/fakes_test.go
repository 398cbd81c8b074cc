package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/controller"
	"github.com/clipdesk/clipdesk/internal/export"
	"github.com/clipdesk/clipdesk/internal/history"
	"github.com/clipdesk/clipdesk/internal/media"
	"github.com/clipdesk/clipdesk/internal/session"
)

const testToken = "secret-token"

type fakeWorkflow struct {
	mu        sync.Mutex
	view      controller.View
	uploadErr error
	uploaded  []string
	movements []string
	processed chan struct{}
	busy      bool
	clip      clips.Clip
	trimCalls []string
	selected  map[string]bool
	media     *backend.Media
	download  *controller.DownloadResult
	dlErr     error
	dlDirs    []string
	exportRes *export.Result
	subs      []func(controller.Event)
}

func newFakeWorkflow() *fakeWorkflow {
	return &fakeWorkflow{
		processed: make(chan struct{}, 1),
		selected:  make(map[string]bool),
		clip: clips.Clip{
			ID: "r1-001", Name: "Squat_01", Duration: 5, End: 5,
			Status: clips.StatusReady, Preview: clips.PreviewStatic,
		},
	}
}

func (f *fakeWorkflow) View() controller.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.view
	v.Movements = append([]string(nil), f.movements...)
	n := 0
	for _, on := range f.selected {
		if on {
			n++
		}
	}
	v.SelectedCount = n
	v.DownloadEnabled = n > 0
	return v
}

func (f *fakeWorkflow) Subscribe(fn func(controller.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeWorkflow) emit(ev controller.Event) {
	f.mu.Lock()
	subs := append(([]func(controller.Event))(nil), f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeWorkflow) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeWorkflow) Upload(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, path)
	f.view.VideoID = "vid-1"
	f.view.MovementsVisible = true
	return "vid-1", nil
}

func (f *fakeWorkflow) AddMovement() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movements = append(f.movements, "")
	return len(f.movements) - 1
}

func (f *fakeWorkflow) SetMovement(i int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.movements) {
		return session.ErrLabelIndex
	}
	f.movements[i] = text
	return nil
}

func (f *fakeWorkflow) StartProcess() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.view.VideoID == "" {
		return controller.ErrNoVideo
	}
	if f.busy {
		return controller.ErrBusy
	}
	f.busy = true
	f.processed <- struct{}{}
	return nil
}

func (f *fakeWorkflow) Clip(id string) (clips.Clip, error) {
	if id != f.clip.ID {
		return clips.Clip{}, clips.ErrUnknownClip
	}
	return f.clip, nil
}

func (f *fakeWorkflow) trim(call, id string, apply func(*clips.Clip) error) (clips.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.clip.ID {
		return clips.Clip{}, clips.ErrUnknownClip
	}
	f.trimCalls = append(f.trimCalls, call)
	if err := apply(&f.clip); err != nil {
		return clips.Clip{}, err
	}
	return f.clip, nil
}

func (f *fakeWorkflow) SetTrimStart(id string, v float64) (clips.Clip, error) {
	return f.trim("start", id, func(c *clips.Clip) error { return c.SetStart(v) })
}

func (f *fakeWorkflow) SetTrimEnd(id string, v float64) (clips.Clip, error) {
	return f.trim("end", id, func(c *clips.Clip) error { return c.SetEnd(v) })
}

func (f *fakeWorkflow) SetTrim(id string, start, end float64) (clips.Clip, error) {
	return f.trim("both", id, func(c *clips.Clip) error {
		if err := c.SetEnd(end); err != nil {
			return err
		}
		return c.SetStart(start)
	})
}

func (f *fakeWorkflow) SetSelected(id string, selected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.clip.ID {
		return clips.ErrUnknownClip
	}
	f.selected[id] = selected
	return nil
}

func (f *fakeWorkflow) ClipMedia(ctx context.Context, id string) (*backend.Media, error) {
	if id != f.clip.ID {
		return nil, clips.ErrUnknownClip
	}
	return f.media, nil
}

func (f *fakeWorkflow) DownloadSelected(ctx context.Context, dir string) (*controller.DownloadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlDirs = append(f.dlDirs, dir)
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	return f.download, nil
}

func (f *fakeWorkflow) ExportEDL(dir, title string) (*export.Result, error) {
	if f.exportRes == nil {
		return nil, controller.ErrNothingSelected
	}
	return f.exportRes, nil
}

// fakeRepo is an in-memory history.Repository.
type fakeRepo struct {
	mu        sync.Mutex
	config    map[string]string
	sessions  []*history.Session
	downloads []*history.Download
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{config: map[string]string{AuthTokenKey: testToken}}
}

func (f *fakeRepo) CreateSession(ctx context.Context, s *history.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeRepo) GetSession(ctx context.Context, id string) (*history.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListSessions(ctx context.Context, limit int) ([]*history.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*history.Session(nil), f.sessions...), nil
}

func (f *fakeRepo) UpdateSessionStatus(ctx context.Context, id, status, errorMsg string) error {
	return nil
}

func (f *fakeRepo) UpdateSessionResult(ctx context.Context, id string, movements []string, clipCount int) error {
	return nil
}

func (f *fakeRepo) CreateDownload(ctx context.Context, d *history.Download) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, d)
	return nil
}

func (f *fakeRepo) ListDownloads(ctx context.Context, sessionID string, limit int) ([]*history.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*history.Download(nil), f.downloads...), nil
}

func (f *fakeRepo) GetConfig(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config[key], nil
}

func (f *fakeRepo) SetConfig(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = value
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, wf *fakeWorkflow, repo *fakeRepo) ServerConfig {
	t.Helper()
	return ServerConfig{
		Workflow:     wf,
		Repository:   repo,
		MediaServer:  media.NewServer(testLogger()),
		DownloadsDir: t.TempDir(),
		BackendURL:   "http://127.0.0.1:8000",
		Logger:       testLogger(),
		StartTime:    time.Now(),
		Version:      "test",
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v (%q)", err, rr.Body.String())
	}
	return body
}
