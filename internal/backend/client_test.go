package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPClient_Upload_Success(t *testing.T) {
	var receivedName string
	var receivedBody []byte
	var receivedLength int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		receivedLength = r.ContentLength

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		receivedName = header.Filename
		receivedBody, _ = io.ReadAll(file)

		json.NewEncoder(w).Encode(UploadResponse{VideoID: "vid-1"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())

	content := bytes.Repeat([]byte("frame"), 1000)
	var lastSent, lastTotal int64
	calls := 0
	videoID, err := client.Upload(context.Background(), "/videos/Workout.MOV", bytes.NewReader(content), int64(len(content)),
		func(sent, total int64) {
			calls++
			if sent < lastSent {
				t.Errorf("progress went backwards: %d < %d", sent, lastSent)
			}
			lastSent, lastTotal = sent, total
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if videoID != "vid-1" {
		t.Errorf("video_id = %q, want %q", videoID, "vid-1")
	}
	if receivedName != "Workout.MOV" {
		t.Errorf("filename = %q, want %q", receivedName, "Workout.MOV")
	}
	if !bytes.Equal(receivedBody, content) {
		t.Errorf("received %d bytes, want %d", len(receivedBody), len(content))
	}
	if receivedLength <= int64(len(content)) {
		t.Errorf("content length = %d, want envelope larger than file", receivedLength)
	}
	if calls == 0 || lastSent != int64(len(content)) || lastTotal != int64(len(content)) {
		t.Errorf("final progress = %d/%d after %d calls, want %d/%d", lastSent, lastTotal, calls, len(content), len(content))
	}
}

func TestHTTPClient_Upload_UnsupportedFormat(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", 0, testLogger())

	_, err := client.Upload(context.Background(), "notes.txt", strings.NewReader("x"), 1, nil)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestHTTPClient_Upload_MissingVideoID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())
	_, err := client.Upload(context.Background(), "a.mp4", strings.NewReader("abc"), 3, nil)
	if !errors.Is(err, ErrEmptyVideoID) {
		t.Fatalf("err = %v, want ErrEmptyVideoID", err)
	}
}

func TestHTTPClient_Process_Success(t *testing.T) {
	var received ProcessRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/process" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("expected request id header")
		}
		json.NewDecoder(r.Body).Decode(&received)

		w.Write([]byte(`{"video_id":"vid-1","movements":{
			"Lunge":[{"start_time":4.0,"end_time":9.5,"gif_path":"02_Lunge_01.gif"}],
			"Squat":[{"start_time":1.0,"end_time":3.25,"gif_path":"01_Squat_01.gif"},
			         {"start_time":10.0,"end_time":12.0,"gif_path":"01_Squat_02.gif"}]}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())

	result, err := client.Process(context.Background(), "vid-1", []string{"Lunge", "Squat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.VideoID != "vid-1" || len(received.Movements) != 2 {
		t.Errorf("request = %+v", received)
	}
	if len(result.Movements) != 2 {
		t.Fatalf("movements = %d, want 2", len(result.Movements))
	}
	if result.Movements[0].Movement != "Lunge" {
		t.Errorf("first movement = %q, want server order (Lunge)", result.Movements[0].Movement)
	}
	if got := result.Movements[1].Segments[1].GifPath; got != "01_Squat_02.gif" {
		t.Errorf("gif_path = %q", got)
	}
	if result.Movements.SegmentCount() != 3 {
		t.Errorf("segment count = %d, want 3", result.Movements.SegmentCount())
	}
}

func TestHTTPClient_Process_NilMovementsSendsEmptyArray(t *testing.T) {
	var raw map[string]json.RawMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"movements":{}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())
	if _, err := client.Process(context.Background(), "vid-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw["movements"]) != "[]" {
		t.Errorf("movements = %s, want []", raw["movements"])
	}
}

func TestHTTPClient_Process_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())
	_, err := client.Process(context.Background(), "vid-1", []string{"Squat"})
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("err = %v, want decode error", err)
	}
}

func TestHTTPClient_Returns_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"GIF not found"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())

	_, err := client.ClipInfo(context.Background(), "missing.gif")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status_code = %d, want %d", apiErr.StatusCode, http.StatusNotFound)
	}
	if !strings.Contains(apiErr.Body, "GIF not found") {
		t.Fatalf("body = %q, want to contain GIF not found", apiErr.Body)
	}
	if apiErr.IsRetryable() {
		t.Fatal("404 should not be retryable")
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	if !(&APIError{StatusCode: http.StatusBadGateway}).IsRetryable() {
		t.Fatal("expected 5xx error to be retryable")
	}
	if (&APIError{StatusCode: http.StatusBadRequest}).IsRetryable() {
		t.Fatal("expected 4xx error to be permanent")
	}
}

func TestHTTPClient_ClipInfo(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.Write([]byte(`{"duration":3.4}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())
	info, err := client.ClipInfo(context.Background(), "01_Farmer's_carry_01.gif")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Duration != 3.4 {
		t.Errorf("duration = %v, want 3.4", info.Duration)
	}
	if !strings.HasPrefix(path, "/api/gif-info/") {
		t.Errorf("path = %q", path)
	}
}

func TestHTTPClient_FetchClip(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4bytes"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())
	u := PreviewURL(client.ClipURL("01_Squat_01.gif"), 0.5, 1.5, 42)

	media, err := client.FetchClip(context.Background(), u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if media.ContentType != "video/mp4" || string(media.Data) != "mp4bytes" {
		t.Errorf("media = %+v", media)
	}
	if query != "start=0.5&end=1.5&t=42&preview=true" {
		t.Errorf("query = %q", query)
	}
}

func TestHTTPClient_DownloadSelected(t *testing.T) {
	var received []Selection
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download-selected" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte("PK\x03\x04zip"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())

	var buf bytes.Buffer
	n, err := client.DownloadSelected(context.Background(), []Selection{
		{URL: "A", Start: 0, End: 2},
		{URL: "B", Start: 1, End: 3},
	}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(buf.Len()) || !strings.HasPrefix(buf.String(), "PK") {
		t.Errorf("archive = %q (%d bytes)", buf.String(), n)
	}
	if len(received) != 2 || received[1].URL != "B" || received[1].End != 3 {
		t.Errorf("received = %+v", received)
	}
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"duration":1}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.ClipInfo(ctx, "a.gif"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPClient(server.URL, 50*time.Millisecond, testLogger())
	if _, err := client.ClipInfo(context.Background(), "a.gif"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHTTPClient_ImplementsService(t *testing.T) {
	var _ Service = (*HTTPClient)(nil)
}
