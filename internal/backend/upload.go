package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// uploadExtensions are the container formats the service accepts.
var uploadExtensions = map[string]bool{
	".mov": true,
	".mp4": true,
	".avi": true,
}

// IsSupportedVideo reports whether the service accepts name for upload.
func IsSupportedVideo(name string) bool {
	return uploadExtensions[strings.ToLower(filepath.Ext(name))]
}

// Upload sends a video as multipart form data and returns the video id.
// onProgress, when non-nil, is called with file bytes sent so far and size.
func (c *HTTPClient) Upload(ctx context.Context, name string, r io.Reader, size int64, onProgress func(sent, total int64)) (string, error) {
	if !IsSupportedVideo(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}

	// Pre-render the multipart envelope so the request carries an exact
	// Content-Length and the file streams straight from r.
	var envelope bytes.Buffer
	mw := multipart.NewWriter(&envelope)
	if _, err := mw.CreateFormFile("file", filepath.Base(name)); err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	head := append([]byte(nil), envelope.Bytes()...)
	envelope.Reset()
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}
	tail := append([]byte(nil), envelope.Bytes()...)

	body := io.MultiReader(
		bytes.NewReader(head),
		&progressReader{r: io.LimitReader(r, size), total: size, onProgress: onProgress},
		bytes.NewReader(tail),
	)

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(head)) + size + int64(len(tail))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("uploading video", "name", filepath.Base(name), "size_bytes", size)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return "", err
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	var result UploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.VideoID == "" {
		return "", ErrEmptyVideoID
	}

	c.logger.Info("upload finished", "video_id", result.VideoID)
	return result.VideoID, nil
}

type progressReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.sent, p.total)
		}
	}
	return n, err
}
