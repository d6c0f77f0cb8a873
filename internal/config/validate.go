package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if c.YTDLP.RetryAttempts < 0 {
		return errors.New("ytdlp.retry_attempts must be zero or positive")
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	s := c.Server
	if s.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be positive")
	}
	if s.DownloadTimeout <= 0 {
		return errors.New("server.download_timeout must be positive")
	}
	if s.RateLimit <= 0 {
		return errors.New("server.rate_limit must be positive")
	}
	if s.RateBurst < 1 {
		return errors.New("server.rate_burst must be at least 1")
	}
	if s.JobCompletedTTL <= 0 || s.JobErroredTTL <= 0 {
		return errors.New("server job TTLs must be positive")
	}
	if s.MaxConcurrent < 1 {
		return errors.New("server.max_concurrent_downloads must be at least 1")
	}
	if s.QueueSize < 1 {
		return errors.New("server.job_queue_size must be at least 1")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must be zero or positive")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must be zero or positive")
	}
	if c.Cache.RedisDB < 0 {
		return errors.New("cache.redis_db must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
