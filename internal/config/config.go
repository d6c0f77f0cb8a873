// Package config loads the ytdl-web TOML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server configures the HTTP surface.
type Server struct {
	Addr            string  `toml:"addr"`
	RequestTimeout  int     `toml:"request_timeout"`
	DownloadTimeout int     `toml:"download_timeout"`
	RateLimit       float64 `toml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst"`
	JobCompletedTTL int     `toml:"job_completed_ttl"`
	JobErroredTTL   int     `toml:"job_errored_ttl"`
	MaxConcurrent   int     `toml:"max_concurrent_downloads"`
	QueueSize       int     `toml:"job_queue_size"`
}

// Paths holds on-disk locations.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	HistoryDB string `toml:"history_db"`
}

// Cache configures the probe cache. A non-empty RedisAddr selects Redis.
type Cache struct {
	TTL           int    `toml:"ttl"`
	MaxEntries    int    `toml:"max_entries"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// YTDLP configures the yt-dlp strategies.
type YTDLP struct {
	Binary         string `toml:"binary"`
	UserAgent      string `toml:"user_agent"`
	NativeFallback bool   `toml:"native_fallback"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full configuration file.
type Config struct {
	Server  Server  `toml:"server"`
	Paths   Paths   `toml:"paths"`
	Cache   Cache   `toml:"cache"`
	YTDLP   YTDLP   `toml:"ytdlp"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns ~/.config/ytdl-web/config.toml.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ytdl-web/config.toml")
}

// Load reads path (or the default location when empty) over Default().
// A missing file is not an error; the returned bool reports whether one
// was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	} else {
		var err error
		if path, err = expandPath(path); err != nil {
			return "", false, err
		}
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		return path, true, nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return path, false, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", false, fmt.Errorf("config file %s does not exist", path)
	default:
		return "", false, fmt.Errorf("stat config: %w", err)
	}
}

// EnsureDirectories creates the work dir and the history DB's parent.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if c.Paths.HistoryDB != "" {
		if err := os.MkdirAll(filepath.Dir(c.Paths.HistoryDB), 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	return nil
}

func (s Server) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

func (s Server) DownloadTimeoutDuration() time.Duration {
	return time.Duration(s.DownloadTimeout) * time.Second
}

func (s Server) JobCompletedTTLDuration() time.Duration {
	return time.Duration(s.JobCompletedTTL) * time.Second
}

func (s Server) JobErroredTTLDuration() time.Duration {
	return time.Duration(s.JobErroredTTL) * time.Second
}

func (c Cache) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
	}
	return filepath.Abs(pathValue)
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file %s already exists", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}
