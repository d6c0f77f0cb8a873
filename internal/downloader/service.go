// Package downloader is the service layer between the transports (web, CLI)
// and the media providers: it validates URLs, normalizes format listings,
// compiles selectors and records finished downloads.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/cache"
	"github.com/lvcoi/ytdl-web/internal/db"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/media"
	"github.com/lvcoi/ytdl-web/internal/provider"
	"github.com/lvcoi/ytdl-web/internal/selector"
)

// History records finished downloads. *db.DB satisfies it.
type History interface {
	Insert(ctx context.Context, r db.Record) (int64, error)
}

// Options configures a Service. Provider is required.
type Options struct {
	Provider provider.Provider
	Cache    cache.Cache
	History  History
	// WorkDir holds downloads until they are handed to the caller.
	WorkDir  string
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Service is safe for concurrent use.
type Service struct {
	provider provider.Provider
	cache    cache.Cache
	history  History
	workDir  string
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("downloader: provider is required")
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, wrapCategory(CategoryFilesystem, fmt.Errorf("creating work dir: %w", err))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		provider: opts.Provider,
		cache:    opts.Cache,
		history:  opts.History,
		workDir:  opts.WorkDir,
		cacheTTL: opts.CacheTTL,
		logger:   opts.Logger,
	}, nil
}

// Listing is the normalized view of a source.
type Listing struct {
	ID        string  `json:"id,omitempty"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader,omitempty"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	URL       string  `json:"url"`
	formats.Result
}

// Direct is a resolved stream URL.
type Direct struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Title    string `json:"title,omitempty"`
	Ext      string `json:"ext,omitempty"`
}

// File is a finished download waiting to be handed over.
type File struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
	Title       string
}

// Open returns a reader that deletes the file once closed.
func (f *File) Open() (*media.DeleteOnClose, error) {
	rc, err := media.OpenDeleteOnClose(f.Path)
	if err != nil {
		return nil, wrapCategory(CategoryFilesystem, err)
	}
	return rc, nil
}

// Remove deletes the file without reading it.
func (f *File) Remove() {
	os.Remove(f.Path)
}

// Formats probes rawURL and returns its deduplicated renditions.
func (s *Service) Formats(ctx context.Context, rawURL string) (*Listing, error) {
	u, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	info, err := s.probe(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Listing{
		ID:        info.ID,
		Title:     info.Title,
		Uploader:  info.Uploader,
		Duration:  info.Duration.Seconds(),
		Thumbnail: info.Thumbnail,
		URL:       u,
		Result:    formats.Normalize(info.Formats),
	}, nil
}

// DirectURL resolves the stream URL the compiled selector picks.
func (s *Service) DirectURL(ctx context.Context, rawURL string, req selector.Request) (*Direct, error) {
	u, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	sel := selector.CompileRequest(req)
	info, err := s.provider.Resolve(ctx, u, sel)
	if err != nil {
		return nil, s.providerError("resolve", u, err)
	}
	return &Direct{URL: info.URL, Selector: sel, Title: info.Title, Ext: info.Ext}, nil
}

// Download fetches the rendition req asks for into the work dir. progress
// may be nil.
func (s *Service) Download(ctx context.Context, rawURL string, req selector.Request, progress func(float64)) (*File, error) {
	u, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	sel := selector.CompileRequest(req)
	start := time.Now()
	dl, err := s.provider.Fetch(ctx, provider.FetchRequest{
		URL:      u,
		Selector: sel,
		Audio:    req.Audio(),
		Dir:      s.workDir,
		Progress: progress,
	})
	if err != nil {
		return nil, s.providerError("fetch", u, err)
	}

	if dl.Ext == "mp3" {
		if err := media.TagMP3(dl.Path, media.Tags{Title: dl.Title, Artist: dl.Uploader}); err != nil {
			s.logger.Warn("tagging mp3 failed", zap.String("path", dl.Path), zap.Error(err))
		}
	}
	stat, err := os.Stat(dl.Path)
	if err != nil {
		return nil, wrapCategory(CategoryFilesystem, fmt.Errorf("stat download: %w", err))
	}

	file := &File{
		Path:        dl.Path,
		Name:        media.SafeFilename(dl.Title, dl.Ext),
		ContentType: media.ContentType(dl.Ext),
		Size:        stat.Size(),
		Title:       dl.Title,
	}
	s.logger.Info("download finished",
		zap.String("url", u),
		zap.String("selector", sel),
		zap.String("ext", dl.Ext),
		zap.Int64("bytes", file.Size),
		zap.Duration("elapsed", time.Since(start)))

	s.record(ctx, db.Record{
		Title:     dl.Title,
		Uploader:  dl.Uploader,
		SourceURL: u,
		MediaType: db.ClassifyMediaType(db.Signals{SourceURL: rawURL, Uploader: dl.Uploader, Title: dl.Title, AudioOnly: req.Audio()}),
		Format:    dl.Ext,
		Quality:   req.Quality,
		Selector:  sel,
		FileSize:  file.Size,
	})
	return file, nil
}

// record is best effort; a history failure never fails the download.
func (s *Service) record(ctx context.Context, r db.Record) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Insert(context.WithoutCancel(ctx), r); err != nil {
		s.logger.Warn("recording history failed", zap.String("url", r.SourceURL), zap.Error(err))
	}
}

func (s *Service) probe(ctx context.Context, u string) (*provider.Info, error) {
	key := "info:" + u
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var info provider.Info
			if err := json.Unmarshal(data, &info); err == nil {
				return &info, nil
			}
			s.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
		}
	}

	info, err := s.provider.Probe(ctx, u)
	if err != nil {
		return nil, s.providerError("probe", u, err)
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if data, err := json.Marshal(info); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return info, nil
}

func (s *Service) providerError(op, u string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	category := CategoryOf(err)
	if category == CategoryUnknown {
		category = CategoryProvider
	}
	s.logger.Warn("provider call failed",
		zap.String("op", op),
		zap.String("url", u),
		zap.String("category", category.String()),
		zap.Error(err))
	return wrapCategory(category, fmt.Errorf("%s %s: %w", op, u, err))
}

// Cleanup removes files in the work dir older than maxAge. It only touches
// names the providers generate.
func (s *Service) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.workDir)
	if err != nil {
		return 0, wrapCategory(CategoryFilesystem, err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "dl-") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(s.workDir, e.Name())) == nil {
			removed++
		}
	}
	return removed, nil
}
