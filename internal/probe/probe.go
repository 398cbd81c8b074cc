// Package probe inspects a local video with ffprobe before it is uploaded.
package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var ErrNoVideoStream = errors.New("no video stream found")

// Result is the subset of ffprobe output clipdesk records.
type Result struct {
	Duration  float64
	Width     int
	Height    int
	Codec     string
	SizeBytes int64
}

// Prober inspects a media file.
type Prober interface {
	Probe(path string) (*Result, error)
}

// FFProbe shells out to ffprobe through ffmpeg-go.
type FFProbe struct {
	logger *slog.Logger
}

func NewFFProbe(logger *slog.Logger) *FFProbe {
	return &FFProbe{logger: logger}
}

func (p *FFProbe) Probe(path string) (*Result, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	res, err := Parse([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	p.logger.Debug("probed video",
		"path", path,
		"duration_s", res.Duration,
		"width", res.Width,
		"height", res.Height,
		"codec", res.Codec,
	)
	return res, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Parse decodes ffprobe's JSON output. The video stream duration wins over
// the container duration when both are present.
func Parse(data []byte) (*Result, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	res := &Result{}
	found := false
	for _, s := range po.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		res.Codec = s.CodecName
		res.Width = s.Width
		res.Height = s.Height
		res.Duration = parseFloat(s.Duration)
		break
	}
	if !found {
		return nil, ErrNoVideoStream
	}

	if res.Duration == 0 {
		res.Duration = parseFloat(po.Format.Duration)
	}
	if size, err := strconv.ParseInt(strings.TrimSpace(po.Format.Size), 10, 64); err == nil {
		res.SizeBytes = size
	}
	return res, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
