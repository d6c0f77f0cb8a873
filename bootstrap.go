package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/cache"
	"github.com/lvcoi/ytdl-web/internal/config"
	"github.com/lvcoi/ytdl-web/internal/db"
	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/provider"
)

// runtime holds everything main builds from the configuration.
type runtime struct {
	service    *downloader.Service
	history    *db.DB
	strategies []string
	closers    []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func buildProvider(cfg *config.Config, logger *zap.Logger) *provider.Chain {
	strategies := []provider.Strategy{
		provider.NewYTDLP("ytdlp", provider.PrimaryProfile(cfg.YTDLP.Binary, cfg.YTDLP.UserAgent), logger),
		provider.NewYTDLP("ytdlp-alt", provider.AlternateProfile(cfg.YTDLP.Binary), logger),
	}
	if cfg.YTDLP.NativeFallback {
		policy := provider.DefaultRetryPolicy
		policy.Attempts = cfg.YTDLP.RetryAttempts
		strategies = append(strategies, provider.NewNative(provider.NewNativeClient(policy), logger))
	}
	return provider.NewChain(logger.Named("provider"), strategies...)
}

// buildCache prefers Redis when configured and reachable.
func buildCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, func() error) {
	if cfg.Cache.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		rc, err := cache.NewRedis(pingCtx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.RedisPrefix,
		})
		if err == nil {
			logger.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
			return rc, rc.Close
		}
		logger.Warn("redis unavailable, falling back to memory cache", zap.Error(err))
	}
	mem := cache.NewMemory(cfg.Cache.MaxEntries)
	mem.StartSweeper(ctx, time.Minute)
	return mem, func() error { return nil }
}

func bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, downloader.CategorizedError{Category: downloader.CategoryFilesystem, Err: err}
	}
	rt := &runtime{}

	chain := buildProvider(cfg, logger)
	rt.strategies = chain.Names()

	store, closeCache := buildCache(ctx, cfg, logger)
	rt.closers = append(rt.closers, closeCache)

	opts := downloader.Options{
		Provider: chain,
		Cache:    store,
		WorkDir:  cfg.Paths.WorkDir,
		CacheTTL: cfg.Cache.TTLDuration(),
		Logger:   logger.Named("service"),
	}
	if cfg.Paths.HistoryDB != "" {
		history, err := db.Open(cfg.Paths.HistoryDB)
		if err != nil {
			logger.Warn("history disabled", zap.String("path", cfg.Paths.HistoryDB), zap.Error(err))
		} else {
			rt.history = history
			opts.History = history
			rt.closers = append(rt.closers, history.Close)
		}
	}

	svc, err := downloader.NewService(opts)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.service = svc
	return rt, nil
}
