// Package provider talks to the media extraction backends. Every backend is
// a Strategy; a Chain tries them in order until one succeeds.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/formats"
)

// Info is what a provider knows about a source. URL is only set by
// Resolve and holds the direct stream URL of the selected format.
type Info struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Uploader   string              `json:"uploader,omitempty"`
	Duration   time.Duration       `json:"duration"`
	Thumbnail  string              `json:"thumbnail,omitempty"`
	WebpageURL string              `json:"webpage_url,omitempty"`
	Ext        string              `json:"ext,omitempty"`
	URL        string              `json:"url,omitempty"`
	Formats    []formats.RawFormat `json:"formats"`
}

// FetchRequest describes one download.
type FetchRequest struct {
	URL      string
	Selector string
	// Audio asks for the result to be delivered as mp3.
	Audio bool
	// Dir receives the output file.
	Dir string
	// Progress, when set, receives download progress in percent.
	Progress func(percent float64)
}

func (r FetchRequest) report(percent float64) {
	if r.Progress != nil {
		r.Progress(percent)
	}
}

// Download is a finished download on local disk.
type Download struct {
	Path     string
	Title    string
	Ext      string
	Uploader string
}

// Provider is the media info boundary the service depends on.
type Provider interface {
	Probe(ctx context.Context, url string) (*Info, error)
	Resolve(ctx context.Context, url, selector string) (*Info, error)
	Fetch(ctx context.Context, req FetchRequest) (*Download, error)
}

// Strategy is one named way of reaching the source.
type Strategy interface {
	Provider
	Name() string
}

var (
	// ErrUnsupportedURL is returned by strategies that cannot handle a host.
	ErrUnsupportedURL = errors.New("url not supported by this provider")
	// ErrNoMatchingFormat means the source has no format the selector accepts.
	ErrNoMatchingFormat = errors.New("no suitable format found")
	// ErrBotCheck marks failures caused by the site's bot detection.
	ErrBotCheck = errors.New("blocked by bot detection")
)

// AttemptError records one strategy failure inside a Chain run.
type AttemptError struct {
	Strategy string
	Err      error
}

func (e AttemptError) Error() string {
	return e.Strategy + ": " + e.Err.Error()
}

func (e AttemptError) Unwrap() error { return e.Err }

// AllStrategiesFailedError is returned when no strategy succeeded.
type AllStrategiesFailedError struct {
	Op       string
	Attempts []AttemptError
}

func (e *AllStrategiesFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return e.Op + ": no strategies configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %s", e.Op, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *AllStrategiesFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// IsBotCheck reports whether err looks like a "confirm you're not a bot"
// rejection.
func IsBotCheck(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBotCheck) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sign in to confirm") || strings.Contains(msg, "not a bot")
}

// Chain tries strategies in order.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Names lists the strategies in the order they are tried.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

func (c *Chain) Probe(ctx context.Context, url string) (*Info, error) {
	return attempt(ctx, c, "probe", func(s Strategy) (*Info, error) {
		return s.Probe(ctx, url)
	})
}

func (c *Chain) Resolve(ctx context.Context, url, selector string) (*Info, error) {
	return attempt(ctx, c, "resolve", func(s Strategy) (*Info, error) {
		return s.Resolve(ctx, url, selector)
	})
}

func (c *Chain) Fetch(ctx context.Context, req FetchRequest) (*Download, error) {
	return attempt(ctx, c, "fetch", func(s Strategy) (*Download, error) {
		return s.Fetch(ctx, req)
	})
}

func attempt[T any](ctx context.Context, c *Chain, op string, fn func(Strategy) (T, error)) (T, error) {
	var zero T
	failed := &AllStrategiesFailedError{Op: op}
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn(s)
		if err == nil {
			if len(failed.Attempts) > 0 {
				c.logger.Info("provider fallback succeeded",
					zap.String("op", op),
					zap.String("strategy", s.Name()),
					zap.Int("failed_attempts", len(failed.Attempts)))
			}
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		c.logger.Warn("provider strategy failed",
			zap.String("op", op),
			zap.String("strategy", s.Name()),
			zap.Bool("bot_check", IsBotCheck(err)),
			zap.Error(err))
		failed.Attempts = append(failed.Attempts, AttemptError{Strategy: s.Name(), Err: err})
	}
	return zero, failed
}

var _ Provider = (*Chain)(nil)
