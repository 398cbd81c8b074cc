package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipdesk/clipdesk/internal/backend"
)

// fakeBackend emulates the clip extraction service over HTTP.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu              sync.Mutex
	requests        []string
	processBodies   []backend.ProcessRequest
	processStatus   int
	processResponse string
	progress        []string
	durations       map[string]float64
	previewFailures int
	previewURLs     []string
	downloadBodies  [][]backend.Selection
	downloadStatus  int
	uploadStatus    int

	// processGate, when set, holds the process response until closed.
	processGate chan struct{}
}

const twoMovements = `{"movements":{
	"arm swings":[
		{"start_time":0,"end_time":5,"gif_path":"A"},
		{"start_time":20,"end_time":26,"gif_path":"skip"}
	],
	"Squat":[{"start_time":30,"end_time":33.3,"gif_path":"B"}]
}}`

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		t:               t,
		processResponse: twoMovements,
		durations:       map[string]float64{"A": 5, "B": 5, "skip": 6},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		f.log(r)
		io.Copy(io.Discard, r.Body)
		if code := f.status(&f.uploadStatus); code != 0 {
			http.Error(w, "upload rejected", code)
			return
		}
		fmt.Fprint(w, `{"video_id":"vid-1"}`)
	})
	mux.HandleFunc("POST /api/process", func(w http.ResponseWriter, r *http.Request) {
		f.log(r)
		var req backend.ProcessRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.processBodies = append(f.processBodies, req)
		resp := f.processResponse
		gate := f.processGate
		f.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-time.After(5 * time.Second):
				f.t.Error("process gate never opened")
			}
		}
		if code := f.status(&f.processStatus); code != 0 {
			http.Error(w, "processing exploded", code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, resp)
	})
	mux.HandleFunc("GET /api/progress/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.log(r)
		w.Header().Set("Content-Type", "text/event-stream")
		f.mu.Lock()
		events := append([]string(nil), f.progress...)
		f.mu.Unlock()
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("GET /api/gif-info/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.log(r)
		f.mu.Lock()
		d, ok := f.durations[r.PathValue("path")]
		f.mu.Unlock()
		if !ok {
			http.Error(w, "no such gif", http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"duration":%v}`, d)
	})
	mux.HandleFunc("GET /api/download/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.log(r)
		if r.URL.Query().Get("preview") != "true" {
			w.Header().Set("Content-Type", "image/gif")
			fmt.Fprint(w, "GIF89a")
			return
		}
		f.mu.Lock()
		f.previewURLs = append(f.previewURLs, r.URL.String())
		fail := f.previewFailures > 0
		if fail {
			f.previewFailures--
		}
		f.mu.Unlock()
		if fail {
			http.Error(w, "transcoder busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "mp4-preview")
	})
	mux.HandleFunc("POST /api/download-selected", func(w http.ResponseWriter, r *http.Request) {
		f.log(r)
		var sels []backend.Selection
		json.NewDecoder(r.Body).Decode(&sels)
		f.mu.Lock()
		f.downloadBodies = append(f.downloadBodies, sels)
		f.mu.Unlock()
		if code := f.status(&f.downloadStatus); code != 0 {
			http.Error(w, "zip failed", code)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		fmt.Fprint(w, "PK-archive")
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) log(r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
}

func (f *fakeBackend) status(p *int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *p
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) client() *backend.HTTPClient {
	return backend.NewHTTPClient(f.server.URL, 0, testLogger())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventLog collects controller events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func recordEvents(c *Controller) *eventLog {
	l := &eventLog{ch: make(chan Event, 1024)}
	c.Subscribe(func(ev Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
		select {
		case l.ch <- ev:
		default:
		}
	})
	return l
}

// waitFor blocks until an event matching pred arrives.
func (l *eventLog) waitFor(t *testing.T, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-l.ch:
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func (l *eventLog) all(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func writeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Repeat("frame", 512)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
