// Package config provides configuration management for clipdesk.
// Configuration is loaded from an optional TOML file, then environment variables,
// with sensible defaults for anything left unset.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultBackendURL        = "http://127.0.0.1:8000"
	DefaultPort              = 8790
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultDataDir           = ".clipdesk"
	DefaultDebounceMS        = 500
	DefaultProgressGraceMS   = 2000
	DefaultArchiveName       = "selected_gifs.zip"
	DefaultLookupConcurrency = 4

	// Environment variable names
	EnvConfigFile        = "CLIPDESK_CONFIG"
	EnvBackendURL        = "CLIPDESK_BACKEND_URL"
	EnvPort              = "CLIPDESK_PORT"
	EnvLogLevel          = "CLIPDESK_LOG_LEVEL"
	EnvLogFormat         = "CLIPDESK_LOG_FORMAT"
	EnvDataDir           = "CLIPDESK_DATA_DIR"
	EnvDebounceMS        = "CLIPDESK_DEBOUNCE_MS"
	EnvProgressGraceMS   = "CLIPDESK_PROGRESS_GRACE_MS"
	EnvArchiveName       = "CLIPDESK_ARCHIVE_NAME"
	EnvRequestTimeout    = "CLIPDESK_REQUEST_TIMEOUT_S"
	EnvHeadless          = "CLIPDESK_HEADLESS"
	EnvProbeUploads      = "CLIPDESK_PROBE_UPLOADS"
	EnvLookupConcurrency = "CLIPDESK_LOOKUP_CONCURRENCY"

	// Database filename
	DBFilename = "clipdesk.db"

	// Lock filename guarding one agent per data dir
	LockFilename = "clipdesk.lock"
)

// Config defines the application configuration interface
type Config interface {
	BackendURL() string
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	LockPath() string
	DownloadsDir() string
	Debounce() time.Duration
	ProgressGrace() time.Duration
	ArchiveName() string
	RequestTimeout() time.Duration
	Headless() bool
	ProbeUploads() bool
	LookupConcurrency() int
}

// fileConfig mirrors the TOML file layout. Pointer fields distinguish
// "absent" from zero values.
type fileConfig struct {
	BackendURL        string `toml:"backend_url"`
	Port              *int   `toml:"port"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
	DataDir           string `toml:"data_dir"`
	DebounceMS        *int   `toml:"debounce_ms"`
	ProgressGraceMS   *int   `toml:"progress_grace_ms"`
	ArchiveName       string `toml:"archive_name"`
	RequestTimeoutS   *int   `toml:"request_timeout_s"`
	Headless          *bool  `toml:"headless"`
	ProbeUploads      *bool  `toml:"probe_uploads"`
	LookupConcurrency *int   `toml:"lookup_concurrency"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	backendURL        string
	port              int
	logLevel          string
	logFormat         string
	dataDir           string
	debounceMS        int
	progressGraceMS   int
	archiveName       string
	requestTimeoutS   int
	headless          bool
	probeUploads      bool
	lookupConcurrency int

	source string
}

// New creates a new EnvConfig from defaults, the config file named by
// CLIPDESK_CONFIG (if any) and environment variable overrides.
func New() (*EnvConfig, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load resolves configuration using path as the TOML file. An empty path
// falls back to <data dir>/config.toml, which may be absent.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		backendURL:        DefaultBackendURL,
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		logFormat:         DefaultLogFormat,
		dataDir:           defaultDataDir(),
		debounceMS:        DefaultDebounceMS,
		progressGraceMS:   DefaultProgressGraceMS,
		archiveName:       DefaultArchiveName,
		probeUploads:      true,
		lookupConcurrency: DefaultLookupConcurrency,
	}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(cfg.dataDir, "config.toml")
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.BackendURL != "" {
		c.backendURL = fc.BackendURL
	}
	if fc.Port != nil {
		c.port = *fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.logFormat = fc.LogFormat
	}
	if fc.DataDir != "" {
		dir, err := ExpandPath(fc.DataDir)
		if err != nil {
			return err
		}
		c.dataDir = dir
	}
	if fc.DebounceMS != nil {
		c.debounceMS = *fc.DebounceMS
	}
	if fc.ProgressGraceMS != nil {
		c.progressGraceMS = *fc.ProgressGraceMS
	}
	if fc.ArchiveName != "" {
		c.archiveName = fc.ArchiveName
	}
	if fc.RequestTimeoutS != nil {
		c.requestTimeoutS = *fc.RequestTimeoutS
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.ProbeUploads != nil {
		c.probeUploads = *fc.ProbeUploads
	}
	if fc.LookupConcurrency != nil {
		c.lookupConcurrency = *fc.LookupConcurrency
	}

	c.source = path
	return nil
}

func (c *EnvConfig) applyEnv() error {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.backendURL = v
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.logFormat = lf
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if an := os.Getenv(EnvArchiveName); an != "" {
		c.archiveName = an
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvDebounceMS, &c.debounceMS},
		{EnvProgressGraceMS, &c.progressGraceMS},
		{EnvRequestTimeout, &c.requestTimeoutS},
		{EnvLookupConcurrency, &c.lookupConcurrency},
	}
	for _, it := range ints {
		v := os.Getenv(it.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.name, err)
		}
		*it.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{EnvHeadless, &c.headless},
		{EnvProbeUploads, &c.probeUploads},
	}
	for _, it := range bools {
		v := os.Getenv(it.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.name, err)
		}
		*it.dst = b
	}

	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if !strings.HasPrefix(c.backendURL, "http://") && !strings.HasPrefix(c.backendURL, "https://") {
		return fmt.Errorf("invalid backend url %q: must start with http:// or https://", c.backendURL)
	}
	if c.debounceMS < 0 || c.progressGraceMS < 0 || c.requestTimeoutS < 0 {
		return errors.New("durations must not be negative")
	}
	if c.lookupConcurrency < 1 {
		return fmt.Errorf("invalid lookup concurrency %d: must be at least 1", c.lookupConcurrency)
	}
	switch strings.ToLower(c.logFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q: want json or text", c.logFormat)
	}
	return nil
}

// BackendURL returns the base URL of the clip extraction service
func (c *EnvConfig) BackendURL() string {
	return strings.TrimRight(c.backendURL, "/")
}

// Port returns the local agent HTTP port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns json or text
func (c *EnvConfig) LogFormat() string {
	return strings.ToLower(c.logFormat)
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// DownloadsDir is where the agent writes archives when no output dir is given.
func (c *EnvConfig) DownloadsDir() string {
	return filepath.Join(c.dataDir, "downloads")
}

func (c *EnvConfig) Debounce() time.Duration {
	return time.Duration(c.debounceMS) * time.Millisecond
}

func (c *EnvConfig) ProgressGrace() time.Duration {
	return time.Duration(c.progressGraceMS) * time.Millisecond
}

func (c *EnvConfig) ArchiveName() string {
	return c.archiveName
}

// RequestTimeout returns the per-request HTTP timeout. Zero means none.
func (c *EnvConfig) RequestTimeout() time.Duration {
	return time.Duration(c.requestTimeoutS) * time.Second
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) ProbeUploads() bool {
	return c.probeUploads
}

func (c *EnvConfig) LookupConcurrency() int {
	return c.lookupConcurrency
}

// Source returns the config file that was applied, or "" when none was.
func (c *EnvConfig) Source() string {
	return c.source
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
