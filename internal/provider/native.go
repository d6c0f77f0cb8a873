package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/media"
	"github.com/lvcoi/ytdl-web/internal/selector"
)

// VideoClient is the subset of *youtube.Client the native strategy uses.
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

var _ VideoClient = (*youtube.Client)(nil)

// Native resolves YouTube sources in-process with kkdai/youtube. It only
// serves progressive formats, so it is a fallback behind yt-dlp.
type Native struct {
	client VideoClient
	logger *zap.Logger
}

func NewNative(client VideoClient, logger *zap.Logger) *Native {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Native{client: client, logger: logger.With(zap.String("strategy", "native"))}
}

// NewNativeClient builds a kkdai client on top of the retrying HTTP client.
func NewNativeClient(policy RetryPolicy) *youtube.Client {
	return &youtube.Client{HTTPClient: NewHTTPClient(policy, 0)}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Probe(ctx context.Context, rawURL string) (*Info, error) {
	video, err := n.video(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	info, _ := videoInfo(video)
	return info, nil
}

func (n *Native) Resolve(ctx context.Context, rawURL, sel string) (*Info, error) {
	video, format, info, err := n.pick(ctx, rawURL, sel)
	if err != nil {
		return nil, err
	}
	stream, err := n.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("resolving stream url: %w", err)
	}
	info.URL = stream
	info.Ext = mimeExt(format.MimeType)
	return info, nil
}

func (n *Native) Fetch(ctx context.Context, req FetchRequest) (*Download, error) {
	video, format, info, err := n.pick(ctx, req.URL, req.Selector)
	if err != nil {
		return nil, err
	}

	stem := media.NewTempStem(req.Dir)
	ext := mimeExt(format.MimeType)
	if ext == "" {
		ext = "bin"
	}
	path := stem + "." + ext
	if err := n.stream(ctx, video, format, path, req); err != nil {
		os.Remove(path)
		return nil, err
	}

	out := &Download{Path: path, Title: info.Title, Ext: ext, Uploader: info.Uploader}
	if !req.Audio || ext == "mp3" {
		return out, nil
	}

	mp3 := stem + ".mp3"
	err = media.ConvertToMP3(ctx, path, mp3)
	os.Remove(path)
	if err != nil {
		return nil, err
	}
	out.Path, out.Ext = mp3, "mp3"
	return out, nil
}

func (n *Native) stream(ctx context.Context, video *youtube.Video, format *youtube.Format, path string, req FetchRequest) error {
	body, size, err := n.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer body.Close()
	if size <= 0 {
		size = format.ContentLength
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := &progressWriter{total: size, report: req.report}
	if _, err := io.Copy(io.MultiWriter(f, w), &ctxReader{ctx: ctx, r: body}); err != nil {
		f.Close()
		return fmt.Errorf("downloading stream: %w", err)
	}
	req.report(100)
	return f.Close()
}

func (n *Native) pick(ctx context.Context, rawURL, sel string) (*youtube.Video, *youtube.Format, *Info, error) {
	clauses, err := selector.Parse(sel)
	if err != nil {
		return nil, nil, nil, err
	}
	video, err := n.video(ctx, rawURL)
	if err != nil {
		return nil, nil, nil, err
	}
	info, byID := videoInfo(video)
	chosen, ok := selector.Pick(info.Formats, clauses)
	if !ok {
		return nil, nil, nil, ErrNoMatchingFormat
	}
	format, ok := byID[chosen.ID()]
	if !ok {
		return nil, nil, nil, ErrNoMatchingFormat
	}
	n.logger.Debug("native format chosen", zap.String("selector", sel), zap.Int("itag", format.ItagNo))
	return video, format, info, nil
}

func (n *Native) video(ctx context.Context, rawURL string) (*youtube.Video, error) {
	if !IsYouTubeHost(rawURL) {
		return nil, ErrUnsupportedURL
	}
	video, err := n.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		if IsBotCheck(err) {
			return nil, fmt.Errorf("%w: %v", ErrBotCheck, err)
		}
		return nil, err
	}
	return video, nil
}

// IsYouTubeHost reports whether rawURL points at a YouTube host.
func IsYouTubeHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be", "youtube-nocookie.com":
		return true
	}
	return false
}

// videoInfo converts a kkdai video into provider Info and indexes its
// formats by id.
func videoInfo(v *youtube.Video) (*Info, map[string]*youtube.Format) {
	info := &Info{
		ID:         v.ID,
		Title:      v.Title,
		Uploader:   v.Author,
		Duration:   v.Duration,
		WebpageURL: "https://www.youtube.com/watch?v=" + v.ID,
		Formats:    make([]formats.RawFormat, 0, len(v.Formats)),
	}
	if n := len(v.Thumbnails); n > 0 {
		info.Thumbnail = v.Thumbnails[n-1].URL
	}
	byID := make(map[string]*youtube.Format, len(v.Formats))
	for i := range v.Formats {
		raw := rawFormat(&v.Formats[i])
		id := raw.ID()
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = &v.Formats[i]
		info.Formats = append(info.Formats, raw)
	}
	return info, byID
}

var errStopped = errors.New("download stopped")

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", errStopped, err)
	}
	return c.r.Read(p)
}

type progressWriter struct {
	total   int64
	written int64
	last    int
	report  func(float64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.total > 0 {
		pct := int(w.written * 100 / w.total)
		if pct > w.last && pct < 100 {
			w.last = pct
			w.report(float64(pct))
		}
	}
	return len(p), nil
}

var _ Strategy = (*Native)(nil)
