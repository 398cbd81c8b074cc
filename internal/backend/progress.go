package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StreamProgress subscribes to the live-progress channel for videoID and
// calls fn for every event. It returns nil when the service ends the stream
// and ctx.Err() when the caller closes it. There is no reconnection.
func (c *HTTPClient) StreamProgress(ctx context.Context, videoID string, fn func(ProgressEvent)) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/api/progress/"+url.PathEscape(videoID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives any per-request timeout; only ctx bounds it.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return err
	}

	c.logger.Debug("progress stream opened", "video_id", videoID)

	err = ReadEvents(resp.Body, func(data string) {
		var ev ProgressEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn("malformed progress event", "video_id", videoID, "error", err)
			return
		}
		fn(ev)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("read progress stream: %w", err)
	}
	return nil
}

// ReadEvents parses a text/event-stream body and calls fn with the data
// payload of each dispatched event. Multi-line data fields are joined with
// newlines. Comments, ids, event names and retry hints are ignored.
func ReadEvents(r io.Reader, fn func(data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var data []string
	dispatch := func() {
		if len(data) > 0 {
			fn(strings.Join(data, "\n"))
		}
		data = data[:0]
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			dispatch()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	// A final event without a trailing blank line is still delivered.
	dispatch()
	return nil
}
