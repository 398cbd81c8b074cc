package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// UploadResponse is the response from POST /api/upload.
type UploadResponse struct {
	VideoID string `json:"video_id"`
}

// ProcessRequest is the request body sent to POST /api/process.
type ProcessRequest struct {
	VideoID   string   `json:"video_id"`
	Movements []string `json:"movements"`
}

// Segment is one slice of the source video mapped to one generated clip.
// Times are seconds in the source video.
type Segment struct {
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	GifPath         string  `json:"gif_path"`
	Description     string  `json:"description,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
}

// MovementSegments pairs a movement label with its segments.
type MovementSegments struct {
	Movement string
	Segments []Segment
}

// Movements is the movement → segments mapping of a process response.
// Unlike a Go map it keeps the key order of the JSON document.
type Movements []MovementSegments

// UnmarshalJSON decodes a JSON object while preserving key order.
func (m *Movements) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("movements: expected object, got %v", tok)
	}

	out := Movements{}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("movements: expected string key, got %v", tok)
		}

		var segs []Segment
		if err := dec.Decode(&segs); err != nil {
			return fmt.Errorf("movements[%q]: %w", name, err)
		}

		// Duplicate keys: last one wins, first position kept.
		if i, dup := seen[name]; dup {
			out[i].Segments = segs
			continue
		}
		seen[name] = len(out)
		out = append(out, MovementSegments{Movement: name, Segments: segs})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON encodes the mapping as a JSON object in order.
func (m Movements) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ms := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ms.Movement)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		segs := ms.Segments
		if segs == nil {
			segs = []Segment{}
		}
		val, err := json.Marshal(segs)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SegmentCount returns the total number of segments across movements.
func (m Movements) SegmentCount() int {
	n := 0
	for _, ms := range m {
		n += len(ms.Segments)
	}
	return n
}

// ProcessResponse is the response from POST /api/process.
type ProcessResponse struct {
	VideoID   string    `json:"video_id,omitempty"`
	Movements Movements `json:"movements"`
}

// ProgressEvent is one message on the live-progress channel.
type ProgressEvent struct {
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
}

// Completed reports whether the step has reached 100%.
func (e ProgressEvent) Completed() bool {
	return e.Progress >= 100
}

// ClipInfo is the response from GET /api/gif-info/{path}.
type ClipInfo struct {
	Duration float64 `json:"duration"`
}

// Selection is one entry of the POST /api/download-selected body.
type Selection struct {
	URL   string  `json:"url"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

var (
	// ErrUnsupportedFormat is returned for uploads the service would reject.
	ErrUnsupportedFormat = errors.New("unsupported video format")
	// ErrEmptyVideoID is returned when the upload response carries no id.
	ErrEmptyVideoID = errors.New("upload response missing video_id")
)
