package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultFrameRate = 30.0
	maxTitleLen      = 120
)

// GenerateEDL renders entries as a CMX3600 list. Record times run back to
// back in entry order.
func GenerateEDL(entries []Entry, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffset := 0.0
	for i, e := range entries {
		srcIn := secondsToTimecode(e.Start, fps)
		srcOut := secondsToTimecode(e.Start+e.Duration(), fps)
		recIn := secondsToTimecode(recordOffset, fps)
		recOut := secondsToTimecode(recordOffset+e.Duration(), fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", e.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", e.MediaPath),
		)

		recordOffset += e.Duration()
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL validates dir and writes the list to "{title}.edl" inside it.
func WriteEDL(dir, title string, entries []Entry, frameRate float64) (*Result, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no clips to export")
	}

	name := SanitizeName(title, maxTitleLen)
	if name == "" {
		name = "clipdesk"
	}
	path := filepath.Join(dir, name+".edl")

	if err := os.WriteFile(path, []byte(GenerateEDL(entries, name, frameRate)), 0o644); err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}
	return &Result{Format: "edl", OutputPath: path, ClipCount: len(entries)}, nil
}

func secondsToTimecode(s float64, fps int) string {
	if s < 0 {
		s = 0
	}
	totalFrames := int(math.Round(s * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
