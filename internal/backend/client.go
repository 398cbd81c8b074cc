// Package backend is the HTTP client for the clip extraction service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	errorBodyLimit = 4096
	jsonBodyLimit  = 16 << 20
	mediaBodyLimit = 256 << 20

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-Id"
)

// APIError represents a non-2xx response from the service.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Media is a fetched clip or preview body.
type Media struct {
	ContentType string
	Data        []byte
}

// Service is the request/response surface of the clip extraction service.
type Service interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, onProgress func(sent, total int64)) (string, error)
	Process(ctx context.Context, videoID string, movements []string) (*ProcessResponse, error)
	StreamProgress(ctx context.Context, videoID string, fn func(ProgressEvent)) error
	ClipInfo(ctx context.Context, path string) (*ClipInfo, error)
	FetchClip(ctx context.Context, url string) (*Media, error)
	DownloadSelected(ctx context.Context, selections []Selection, w io.Writer) (int64, error)
	ClipURL(path string) string
}

// HTTPClient talks to the clip extraction service over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a client for baseURL. A zero timeout leaves requests
// bounded only by their context.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// BaseURL returns the service root the client was configured with.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Process submits movement labels for segmentation and waits for the result.
func (c *HTTPClient) Process(ctx context.Context, videoID string, movements []string) (*ProcessResponse, error) {
	if movements == nil {
		movements = []string{}
	}
	body, err := json.Marshal(ProcessRequest{VideoID: videoID, Movements: movements})
	if err != nil {
		return nil, fmt.Errorf("marshal process request: %w", err)
	}

	c.logger.Info("submitting process request",
		"video_id", videoID,
		"movement_count", len(movements),
	)

	var result ProcessResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/process", body, &result); err != nil {
		return nil, err
	}

	c.logger.Info("process request finished",
		"video_id", videoID,
		"movements", len(result.Movements),
		"segments", result.Movements.SegmentCount(),
	)
	return &result, nil
}

// ClipInfo returns metadata for a generated clip.
func (c *HTTPClient) ClipInfo(ctx context.Context, path string) (*ClipInfo, error) {
	var info ClipInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/gif-info/"+escapePath(path), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchClip downloads a clip or preview URL as produced by ClipURL or PreviewURL.
func (c *HTTPClient) FetchClip(ctx context.Context, url string) (*Media, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, mediaBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read clip body: %w", err)
	}
	return &Media{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// DownloadSelected asks the service to bundle selections into an archive
// and streams it into w.
func (c *HTTPClient) DownloadSelected(ctx context.Context, selections []Selection, w io.Writer) (int64, error) {
	body, err := json.Marshal(selections)
	if err != nil {
		return 0, fmt.Errorf("marshal download request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/api/download-selected", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("requesting archive", "clip_count", len(selections), "body_bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read archive body: %w", err)
	}
	return n, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := c.newRequest(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return err
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, jsonBodyLimit))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &APIError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
}
