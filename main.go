package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/app"
	"github.com/lvcoi/ytdl-web/internal/config"
	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/logging"
	"github.com/lvcoi/ytdl-web/internal/selector"
	"github.com/lvcoi/ytdl-web/internal/tui"
	"github.com/lvcoi/ytdl-web/internal/web"
)

type cliOptions struct {
	configPath  string
	initConfig  bool
	serve       bool
	addr        string
	listFormats bool
	interactive bool
	directURL   bool
	quality     string
	format      string
	audio       bool
	jobs        int
	output      string
	json        bool
	logLevel    string
	timeout     time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, []string, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("ytdl-web", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/ytdl-web/config.toml)")
	fs.BoolVar(&opts.initConfig, "init-config", false, "write a sample config to -config (or the default path) and exit")
	fs.BoolVar(&opts.serve, "serve", false, "run the web server")
	fs.StringVar(&opts.addr, "addr", "", "listen address for -serve (overrides config)")
	fs.BoolVar(&opts.listFormats, "list-formats", false, "list available formats and exit")
	fs.BoolVar(&opts.interactive, "interactive", false, "pick a format interactively before downloading")
	fs.BoolVar(&opts.directURL, "url", false, "print the direct stream URL instead of downloading")
	fs.StringVar(&opts.quality, "quality", "best", "preferred quality (e.g. 1080p, 720p, best, worst)")
	fs.StringVar(&opts.format, "format", "mp4", "download type: mp4 or mp3")
	fs.BoolVar(&opts.audio, "audio", false, "shorthand for -format mp3")
	fs.IntVar(&opts.jobs, "jobs", 1, "number of concurrent downloads")
	fs.StringVar(&opts.output, "o", ".", "output directory")
	fs.BoolVar(&opts.json, "json", false, "emit JSON output")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	fs.DurationVar(&opts.timeout, "timeout", 3*time.Minute, "per-request timeout for -list-formats and -url")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if opts.audio {
		opts.format = "mp3"
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, urls, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.initConfig {
		path := opts.configPath
		if path == "" {
			if path, err = config.DefaultConfigPath(); err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				return 1
			}
		}
		if err := config.CreateSample(path); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
		return 0
	}

	cfg, _, _, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	logger, err := logging.New(stderr, logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if !opts.serve && len(urls) == 0 {
		err := downloader.CategorizedError{Category: downloader.CategoryInvalidURL, Err: errors.New("no url provided")}
		if opts.json {
			writeJSONError(stdout, "", err)
		} else {
			fmt.Fprintf(stderr, "usage: ytdl-web [options] <url> [url...]\n       ytdl-web -serve [-addr host:port]\n")
		}
		return downloader.ExitCode(err)
	}

	rt, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return downloader.ExitCode(err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	switch {
	case opts.serve:
		return serve(ctx, cfg, rt, logger)
	case opts.listFormats:
		return listFormats(ctx, opts, urls, rt.service, stdout, stderr)
	case opts.directURL:
		return printDirectURLs(ctx, opts, urls, rt.service, stdout, stderr)
	default:
		return download(ctx, opts, urls, rt.service, stdout, stderr)
	}
}

func serve(ctx context.Context, cfg *config.Config, rt *runtime, logger *zap.Logger) int {
	deps := web.Deps{
		Service:    rt.service,
		Logger:     logger,
		Strategies: rt.strategies,
	}
	if rt.history != nil {
		deps.History = rt.history
	}
	srv := web.NewServer(web.Config{
		Addr:            cfg.Server.Addr,
		RequestTimeout:  cfg.Server.RequestTimeoutDuration(),
		DownloadTimeout: cfg.Server.DownloadTimeoutDuration(),
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		JobCompletedTTL: cfg.Server.JobCompletedTTLDuration(),
		JobErroredTTL:   cfg.Server.JobErroredTTLDuration(),
		MaxConcurrent:   cfg.Server.MaxConcurrent,
		QueueSize:       cfg.Server.QueueSize,
	}, deps)

	// Sweep temp files left behind by crashed or abandoned downloads.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		maxAge := cfg.Server.DownloadTimeoutDuration() + cfg.Server.JobErroredTTLDuration()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := rt.service.Cleanup(maxAge); err != nil {
					logger.Warn("work dir cleanup", zap.Error(err))
				} else if n > 0 {
					logger.Info("removed stale downloads", zap.Int("count", n))
				}
			}
		}
	}()

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func listFormats(ctx context.Context, opts cliOptions, urls []string, svc *downloader.Service, stdout, stderr io.Writer) int {
	exitCode := 0
	for _, u := range urls {
		reqCtx, cancel := context.WithTimeout(ctx, opts.timeout)
		listing, err := svc.Formats(reqCtx, u)
		cancel()
		if err != nil {
			exitCode = max(exitCode, reportError(stdout, stderr, opts.json, u, err))
			continue
		}
		if opts.json {
			writeJSON(stdout, listing)
			continue
		}
		fmt.Fprint(stdout, tui.RenderTable(listing))
	}
	return exitCode
}

func printDirectURLs(ctx context.Context, opts cliOptions, urls []string, svc *downloader.Service, stdout, stderr io.Writer) int {
	req := selector.Request{Quality: opts.quality, FormatType: opts.format}
	exitCode := 0
	for _, u := range urls {
		reqCtx, cancel := context.WithTimeout(ctx, opts.timeout)
		direct, err := svc.DirectURL(reqCtx, u, req)
		cancel()
		if err != nil {
			exitCode = max(exitCode, reportError(stdout, stderr, opts.json, u, err))
			continue
		}
		if opts.json {
			writeJSON(stdout, direct)
			continue
		}
		fmt.Fprintln(stdout, direct.URL)
	}
	return exitCode
}

func download(ctx context.Context, opts cliOptions, urls []string, svc *downloader.Service, stdout, stderr io.Writer) int {
	req := selector.Request{Quality: opts.quality, FormatType: opts.format}

	if opts.interactive {
		if len(urls) != 1 {
			fmt.Fprintln(stderr, "error: -interactive takes exactly one url")
			return 2
		}
		listing, err := svc.Formats(ctx, urls[0])
		if err != nil {
			return reportError(stdout, stderr, opts.json, urls[0], err)
		}
		chosen, ok, err := tui.RunPicker(listing, os.Stdin, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		if !ok {
			return 0
		}
		req = tui.RequestFor(chosen)
	}

	var progress *tui.Progress
	if !opts.json {
		progress = tui.NewProgress(stderr)
		progress.Start(ctx)
	}
	results, exitCode := app.Run(ctx, urls, svc, app.Options{
		Request:   req,
		OutputDir: opts.output,
		Jobs:      opts.jobs,
		Progress:  progress,
	})
	progress.Stop()

	for _, res := range results {
		switch {
		case res.Err != nil:
			reportError(stdout, stderr, opts.json, res.URL, res.Err)
		case opts.json:
			writeJSON(stdout, res)
		default:
			fmt.Fprintf(stdout, "%s\n", res.Path)
		}
	}
	return exitCode
}

func reportError(stdout, stderr io.Writer, asJSON bool, url string, err error) int {
	if asJSON {
		writeJSONError(stdout, url, err)
	} else {
		fmt.Fprintf(stderr, "error: %s: %v\n", url, err)
	}
	return downloader.ExitCode(err)
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w io.Writer, url string, err error) {
	writeJSON(w, struct {
		Type     string `json:"type"`
		URL      string `json:"url,omitempty"`
		Category string `json:"category"`
		Error    string `json:"error"`
	}{
		Type:     "error",
		URL:      url,
		Category: downloader.CategoryOf(err).String(),
		Error:    err.Error(),
	})
}
