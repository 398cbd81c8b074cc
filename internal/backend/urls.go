package backend

import (
	"net/url"
	"strconv"
	"strings"
)

// ClipURL returns the download URL of a generated clip without any trim
// parameters.
func (c *HTTPClient) ClipURL(path string) string {
	return c.baseURL + "/api/download/" + escapePath(path)
}

// TrimURL appends start and end to a base clip URL.
func TrimURL(base string, start, end float64) string {
	return BaseURL(base) + "?start=" + formatSeconds(start) + "&end=" + formatSeconds(end)
}

// PreviewURL builds the short-lived preview video URL for a trim. cacheBust
// defeats intermediary caches between consecutive trims.
func PreviewURL(base string, start, end float64, cacheBust int64) string {
	return TrimURL(base, start, end) +
		"&t=" + strconv.FormatInt(cacheBust, 10) +
		"&preview=true"
}

// BaseURL strips any query string or fragment from u.
func BaseURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// ClipName returns the archive entry name the service derives from a clip URL.
func ClipName(u string) string {
	base := BaseURL(u)
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if name, err := url.PathUnescape(base); err == nil {
		return name
	}
	return base
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
