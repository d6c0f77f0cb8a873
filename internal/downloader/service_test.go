package downloader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	id3v2 "github.com/bogem/id3v2/v2"

	"github.com/lvcoi/ytdl-web/internal/cache"
	"github.com/lvcoi/ytdl-web/internal/db"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/provider"
	"github.com/lvcoi/ytdl-web/internal/selector"
)

type fakeProvider struct {
	mu        sync.Mutex
	probes    int
	info      *provider.Info
	err       error
	selectors []string
}

func (f *fakeProvider) Probe(ctx context.Context, url string) (*provider.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeProvider) Resolve(ctx context.Context, url, sel string) (*provider.Info, error) {
	f.mu.Lock()
	f.selectors = append(f.selectors, sel)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.URL = "https://cdn.example/stream"
	return &info, nil
}

func (f *fakeProvider) Fetch(ctx context.Context, req provider.FetchRequest) (*provider.Download, error) {
	f.mu.Lock()
	f.selectors = append(f.selectors, req.Selector)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ext := "mp4"
	if req.Audio {
		ext = "mp3"
	}
	path := filepath.Join(req.Dir, "dl-test."+ext)
	payload := []byte("media")
	if ext == "mp3" {
		payload = mp3Frame()
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, err
	}
	if req.Progress != nil {
		req.Progress(100)
	}
	return &provider.Download{Path: path, Title: f.info.Title, Ext: ext, Uploader: f.info.Uploader}, nil
}

// mp3Frame is one zero-padded MPEG-1 Layer III frame.
func mp3Frame() []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xff, 0xfb, 0x90, 0x00})
	return frame
}

type memHistory struct {
	mu      sync.Mutex
	records []db.Record
}

func (h *memHistory) Insert(ctx context.Context, r db.Record) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return int64(len(h.records)), nil
}

func sampleInfo() *provider.Info {
	return &provider.Info{
		ID:       "abc",
		Title:    "A/B Test",
		Uploader: "Channel",
		Duration: 90 * time.Second,
		Formats: []formats.RawFormat{
			{FormatID: formats.Ptr("18"), Ext: formats.Ptr("mp4"), VCodec: formats.Ptr("avc1"), ACodec: formats.Ptr("mp4a"), Height: formats.Ptr(360)},
			{FormatID: formats.Ptr("137"), Ext: formats.Ptr("mp4"), VCodec: formats.Ptr("avc1"), ACodec: formats.Ptr("none"), Height: formats.Ptr(1080)},
			{FormatID: formats.Ptr("140"), Ext: formats.Ptr("m4a"), VCodec: formats.Ptr("none"), ACodec: formats.Ptr("mp4a"), ABR: formats.Ptr(128.0)},
		},
	}
}

func newTestService(t *testing.T, p provider.Provider, opts Options) *Service {
	t.Helper()
	opts.Provider = p
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestServiceFormats(t *testing.T) {
	fp := &fakeProvider{info: sampleInfo()}
	svc := newTestService(t, fp, Options{Cache: cache.NewMemory(0), CacheTTL: time.Minute})

	listing, err := svc.Formats(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Formats: %v", err)
	}
	if listing.Title != "A/B Test" || listing.Duration != 90 {
		t.Fatalf("listing = %+v", listing)
	}
	if len(listing.VideoFormats) != 1 || listing.VideoFormats[0].ID != "18" {
		t.Fatalf("video formats = %+v", listing.VideoFormats)
	}
	if len(listing.AudioFormats) != 1 || listing.AudioFormats[0].Container != "mp3" {
		t.Fatalf("audio formats = %+v", listing.AudioFormats)
	}

	if _, err := svc.Formats(context.Background(), "https://www.youtube.com/watch?v=abc"); err != nil {
		t.Fatalf("second Formats: %v", err)
	}
	if fp.probes != 1 {
		t.Fatalf("probes = %d, want 1 (canonical URL should hit the cache)", fp.probes)
	}
}

func TestServiceFormatsInvalidURL(t *testing.T) {
	fp := &fakeProvider{info: sampleInfo()}
	svc := newTestService(t, fp, Options{})
	_, err := svc.Formats(context.Background(), "ftp://example.com/x")
	if CategoryOf(err) != CategoryInvalidURL {
		t.Fatalf("err = %v, want invalid url", err)
	}
	if fp.probes != 0 {
		t.Fatal("provider should not be called for invalid URLs")
	}
}

func TestServiceProviderFailure(t *testing.T) {
	failed := &provider.AllStrategiesFailedError{Op: "probe", Attempts: []provider.AttemptError{{Strategy: "yt-dlp", Err: errors.New("exit status 1")}}}
	svc := newTestService(t, &fakeProvider{err: failed}, Options{})
	_, err := svc.Formats(context.Background(), "https://example.com/v")
	if CategoryOf(err) != CategoryProvider {
		t.Fatalf("category = %v", CategoryOf(err))
	}
	if !errors.As(err, &failed) {
		t.Fatalf("attempts lost in wrapping: %v", err)
	}
}

func TestServiceDirectURL(t *testing.T) {
	fp := &fakeProvider{info: sampleInfo()}
	svc := newTestService(t, fp, Options{})
	direct, err := svc.DirectURL(context.Background(), "https://example.com/v", selector.Request{Quality: "720p", FormatType: "mp4"})
	if err != nil {
		t.Fatalf("DirectURL: %v", err)
	}
	want := "best[height<=720][ext=mp4]/best[height<=720]/best[ext=mp4]/best"
	if direct.Selector != want || fp.selectors[0] != want {
		t.Fatalf("selector = %q, want %q", direct.Selector, want)
	}
	if direct.URL != "https://cdn.example/stream" {
		t.Fatalf("url = %q", direct.URL)
	}
}

func TestServiceDownload(t *testing.T) {
	fp := &fakeProvider{info: sampleInfo()}
	hist := &memHistory{}
	svc := newTestService(t, fp, Options{History: hist})

	var last float64
	file, err := svc.Download(context.Background(), "https://example.com/v", selector.Request{Quality: "best", FormatType: "mp4"}, func(p float64) { last = p })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if file.Name != "A_B Test.mp4" || file.ContentType != "video/mp4" || file.Size != 5 {
		t.Fatalf("file = %+v", file)
	}
	if last != 100 {
		t.Fatalf("progress not forwarded")
	}
	if fp.selectors[0] != "best[ext=mp4]/best" {
		t.Fatalf("selector = %q", fp.selectors[0])
	}

	rc, err := file.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "media" {
		t.Fatalf("content = %q", data)
	}
	if _, err := os.Stat(file.Path); !os.IsNotExist(err) {
		t.Fatalf("file should be deleted after close")
	}

	if len(hist.records) != 1 {
		t.Fatalf("history records = %d", len(hist.records))
	}
	rec := hist.records[0]
	if rec.Format != "mp4" || rec.Selector != "best[ext=mp4]/best" || rec.MediaType != "video" || rec.FileSize != 5 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestServiceDownloadAudio(t *testing.T) {
	fp := &fakeProvider{info: sampleInfo()}
	hist := &memHistory{}
	svc := newTestService(t, fp, Options{History: hist})

	file, err := svc.Download(context.Background(), "https://example.com/v", selector.Request{Quality: "1080p", FormatType: "mp3"}, nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer file.Remove()
	if fp.selectors[0] != "bestaudio/best" {
		t.Fatalf("selector = %q", fp.selectors[0])
	}
	if file.ContentType != "audio/mpeg" {
		t.Fatalf("content type = %q", file.ContentType)
	}
	if hist.records[0].MediaType != "music" {
		t.Fatalf("media type = %q", hist.records[0].MediaType)
	}

	tag, err := id3v2.Open(file.Path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("open tag: %v", err)
	}
	defer tag.Close()
	if tag.Title() != "A/B Test" || tag.Artist() != "Channel" {
		t.Fatalf("tag = %q / %q", tag.Title(), tag.Artist())
	}
}

func TestServiceCleanup(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, &fakeProvider{info: sampleInfo()}, Options{WorkDir: dir})
	old := filepath.Join(dir, "dl-old.mp4")
	keep := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(keep, past, past)

	n, err := svc.Cleanup(time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("unrelated file removed")
	}
}
