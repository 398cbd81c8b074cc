// Package export writes selection artifacts (archives and edit decision
// lists) into user-chosen directories.
package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidOutputDir is wrapped by every ValidateOutputDir failure.
var ErrInvalidOutputDir = errors.New("invalid output_dir")

const nameSymbols = " -_.,()"

// SanitizeName makes s usable as one path element. Control characters are
// dropped and anything other than letters, digits and nameSymbols becomes
// '_'. The result is trimmed and cut to maxLen runes; maxLen <= 0 keeps it
// whole.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(nameRune, s))
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxLen]))
	}
	return cleaned
}

func nameRune(r rune) rune {
	switch {
	case unicode.IsControl(r):
		return -1
	case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(nameSymbols, r):
		return r
	default:
		return '_'
	}
}

// ValidateOutputDir accepts only clean, traversal-free paths to existing
// directories.
func ValidateOutputDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return invalidDir("output_dir is required")
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return invalidDir("output_dir cannot contain path traversal")
	case filepath.Clean(dir) != dir:
		return invalidDir("output_dir must be a clean path")
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return invalidDir("output_dir %s does not exist", dir)
	case err != nil:
		return invalidDir("%v", err)
	case !info.IsDir():
		return invalidDir("output_dir %s is not a directory", dir)
	}
	return nil
}

func invalidDir(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOutputDir, fmt.Sprintf(format, args...))
}

// OutputPath validates dir and joins it with the sanitized base of name.
// Hidden names are refused so results never collide with in-progress
// temp files.
func OutputPath(dir, name string) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}
	clean := strings.TrimLeft(SanitizeName(filepath.Base(name), 200), ".")
	if clean == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(dir, clean), nil
}
