package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Server writes media bodies honouring Range requests.
type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeBytes serves an in-memory body such as a cached preview.
func (s *Server) ServeBytes(w http.ResponseWriter, r *http.Request, contentType string, data []byte) error {
	return s.serve(w, r, contentType, bytes.NewReader(data), int64(len(data)))
}

// ServeFile serves a file from disk. A missing file is answered with 404.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	s.logger.Debug("serving file", "path", filePath, "size", humanize.Bytes(uint64(stat.Size())))
	return s.serve(w, r, ContentType(filePath), file, stat.Size())
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, contentType string, body io.ReadSeeker, size int64) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	parsed, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed header is ignored and the full body is served.
	if parsed == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, body)
		}
		return nil
	}

	if _, err := body.Seek(parsed.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(parsed.ContentLength(), 10))
	w.Header().Set("Content-Range", parsed.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		io.CopyN(w, body, parsed.ContentLength())
	}
	return nil
}

// ContentType guesses a MIME type from a file or clip name.
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".gif":
		return "image/gif"
	case ".zip":
		return "application/zip"
	case ".mp4":
		return "video/mp4"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
