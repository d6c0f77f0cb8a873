package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingDefaultUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, exists, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected no config file, got %s", path)
	}
	if cfg.Server.Addr != defaultAddr || cfg.YTDLP.Binary != "yt-dlp" || !cfg.YTDLP.NativeFallback {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !filepath.IsAbs(cfg.Paths.HistoryDB) || strings.Contains(cfg.Paths.HistoryDB, "~") {
		t.Fatalf("expected expanded history path, got %q", cfg.Paths.HistoryDB)
	}
	if cfg.Cache.TTLDuration() != 10*time.Minute {
		t.Fatalf("unexpected cache ttl %v", cfg.Cache.TTLDuration())
	}
}

func TestLoadCustomPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
addr = ":9090"
download_timeout = 60

[paths]
work_dir = "` + filepath.ToSlash(filepath.Join(dir, "work")) + `"
history_db = ""

[cache]
redis_addr = " localhost:6379 "

[ytdlp]
binary = "/opt/yt-dlp"
native_fallback = false

[logging]
level = "DEBUG"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %s to be read, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.DownloadTimeoutDuration() != time.Minute {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != defaultRequestTimeout {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Server.RequestTimeout)
	}
	if cfg.Paths.HistoryDB != "" {
		t.Fatalf("expected history disabled, got %q", cfg.Paths.HistoryDB)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" || cfg.Cache.RedisPrefix != defaultRedisPrefix {
		t.Fatalf("unexpected cache section %+v", cfg.Cache)
	}
	if cfg.YTDLP.Binary != "/opt/yt-dlp" || cfg.YTDLP.NativeFallback {
		t.Fatalf("unexpected ytdlp section %+v", cfg.YTDLP)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging section %+v", cfg.Logging)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.WorkDir); err != nil || !info.IsDir() {
		t.Fatalf("expected work dir to exist: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "missing explicit", path: filepath.Join(dir, "nope.toml"), want: "does not exist"},
		{name: "bad toml", path: write("bad.toml", "[server\naddr="), want: "parse config"},
		{name: "unknown key", path: write("unknown.toml", "[server]\nport = 1\n"), want: "parse config"},
		{name: "bad level", path: write("level.toml", "[logging]\nlevel = \"loud\"\n"), want: "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Load(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"rate burst", func(c *Config) { c.Server.RateBurst = 0 }},
		{"job ttl", func(c *Config) { c.Server.JobErroredTTL = 0 }},
		{"concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }},
		{"cache ttl", func(c *Config) { c.Cache.TTL = -1 }},
		{"redis db", func(c *Config) { c.Cache.RedisDB = -2 }},
		{"retry", func(c *Config) { c.YTDLP.RetryAttempts = -1 }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if err := CreateSample(path); err == nil {
		t.Fatalf("expected error when sample already exists")
	}
}
