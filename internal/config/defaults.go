package config

import (
	"os"
	"path/filepath"
)

const (
	defaultAddr            = "127.0.0.1:8080"
	defaultRequestTimeout  = 120
	defaultDownloadTimeout = 1800
	defaultRateLimit       = 2.0
	defaultRateBurst       = 10
	defaultJobCompletedTTL = 900
	defaultJobErroredTTL   = 1800
	defaultMaxConcurrent   = 2
	defaultQueueSize       = 32
	defaultCacheTTL        = 600
	defaultCacheEntries    = 256
	defaultRedisPrefix     = "ytdl-web:"
	defaultYTDLPBinary     = "yt-dlp"
	defaultRetryAttempts   = 3
	defaultLogLevel        = "info"
	defaultLogFormat       = "console"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            defaultAddr,
			RequestTimeout:  defaultRequestTimeout,
			DownloadTimeout: defaultDownloadTimeout,
			RateLimit:       defaultRateLimit,
			RateBurst:       defaultRateBurst,
			JobCompletedTTL: defaultJobCompletedTTL,
			JobErroredTTL:   defaultJobErroredTTL,
			MaxConcurrent:   defaultMaxConcurrent,
			QueueSize:       defaultQueueSize,
		},
		Paths: Paths{
			WorkDir:   filepath.Join(os.TempDir(), "ytdl-web"),
			HistoryDB: "~/.local/share/ytdl-web/history.db",
		},
		Cache: Cache{
			TTL:         defaultCacheTTL,
			MaxEntries:  defaultCacheEntries,
			RedisPrefix: defaultRedisPrefix,
		},
		YTDLP: YTDLP{
			Binary:         defaultYTDLPBinary,
			NativeFallback: true,
			RetryAttempts:  defaultRetryAttempts,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
