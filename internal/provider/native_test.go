package provider

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/kkdai/youtube/v2"
)

type mockClient struct {
	video     *youtube.Video
	videoErr  error
	payload   string
	streamURL string
	urls      []string
}

func (m *mockClient) GetVideoContext(ctx context.Context, url string) (*youtube.Video, error) {
	m.urls = append(m.urls, url)
	if m.videoErr != nil {
		return nil, m.videoErr
	}
	return m.video, nil
}

func (m *mockClient) GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader(m.payload)), int64(len(m.payload)), nil
}

func (m *mockClient) GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error) {
	return m.streamURL + "?itag=" + strconv.Itoa(format.ItagNo), nil
}

func sampleVideo() *youtube.Video {
	return &youtube.Video{
		ID:     "abc123",
		Title:  "Sample Clip",
		Author: "Channel",
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, QualityLabel: "360p", Height: 360, Width: 640, ContentLength: 1000},
			{ItagNo: 22, MimeType: `video/mp4; codecs="avc1.64001F, mp4a.40.2"`, QualityLabel: "720p", Height: 720, Width: 1280},
			{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, QualityLabel: "1080p", Height: 1080},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AverageBitrate: 129500, AudioChannels: 2},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
		},
	}
}

func TestRawFormatFromMime(t *testing.T) {
	v := sampleVideo()
	muxed := rawFormat(&v.Formats[0])
	if !muxed.HasVideo() || !muxed.HasAudio() || muxed.Extension() != "mp4" {
		t.Fatalf("muxed = %+v", muxed)
	}
	if *muxed.ACodec != "mp4a.40.2" {
		t.Fatalf("acodec = %q", *muxed.ACodec)
	}

	videoOnly := rawFormat(&v.Formats[2])
	if videoOnly.HasAudio() {
		t.Fatalf("adaptive video should have no audio codec")
	}

	audio := rawFormat(&v.Formats[3])
	if audio.HasVideo() || !audio.HasAudio() || audio.Extension() != "m4a" {
		t.Fatalf("audio = %+v", audio)
	}
	if audio.ABR == nil || *audio.ABR != 129.5 {
		t.Fatalf("abr = %v", audio.ABR)
	}
	if audio.Filesize != nil {
		t.Fatalf("missing content length should leave filesize nil")
	}
}

func TestMimeExt(t *testing.T) {
	tests := map[string]string{
		`video/mp4; codecs="avc1"`:  "mp4",
		`audio/mp4; codecs="mp4a"`:  "m4a",
		`audio/webm; codecs="opus"`: "webm",
		`video/3gpp`:                "3gp",
		`audio/mpeg`:                "mp3",
		``:                          "",
	}
	for in, want := range tests {
		if got := mimeExt(in); got != want {
			t.Errorf("mimeExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNativeRejectsOtherHosts(t *testing.T) {
	client := &mockClient{video: sampleVideo()}
	n := NewNative(client, nil)
	_, err := n.Probe(context.Background(), "https://vimeo.com/123")
	if !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("err = %v, want ErrUnsupportedURL", err)
	}
	if len(client.urls) != 0 {
		t.Fatalf("client should not be called")
	}
}

func TestNativeProbe(t *testing.T) {
	n := NewNative(&mockClient{video: sampleVideo()}, nil)
	info, err := n.Probe(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Title != "Sample Clip" || info.Uploader != "Channel" || len(info.Formats) != 5 {
		t.Fatalf("info = %+v", info)
	}
}

func TestNativeResolveHonoursSelector(t *testing.T) {
	n := NewNative(&mockClient{video: sampleVideo(), streamURL: "https://cdn.example/s"}, nil)
	tests := []struct {
		selector string
		want     string
	}{
		{"best[height<=480][ext=mp4]/best[height<=480]/best[ext=mp4]/best", "https://cdn.example/s?itag=18"},
		{"best[ext=mp4]/best", "https://cdn.example/s?itag=22"},
		{"bestaudio/best", "https://cdn.example/s?itag=251"},
	}
	for _, tt := range tests {
		info, err := n.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc123", tt.selector)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.selector, err)
		}
		if info.URL != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.selector, info.URL, tt.want)
		}
	}
}

func TestNativeResolveBadSelector(t *testing.T) {
	n := NewNative(&mockClient{video: sampleVideo()}, nil)
	if _, err := n.Resolve(context.Background(), "https://youtu.be/abc123", "bestvideo+bestaudio"); err == nil {
		t.Fatal("expected parse error for merge selector")
	}
}

func TestNativeFetchVideo(t *testing.T) {
	var progress []float64
	n := NewNative(&mockClient{video: sampleVideo(), payload: "video-bytes"}, nil)
	dl, err := n.Fetch(context.Background(), FetchRequest{
		URL:      "https://youtu.be/abc123",
		Selector: "best[height<=360][ext=mp4]/best",
		Dir:      t.TempDir(),
		Progress: func(p float64) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if dl.Ext != "mp4" || dl.Title != "Sample Clip" {
		t.Fatalf("download = %+v", dl)
	}
	data, err := os.ReadFile(dl.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Fatalf("content = %q", data)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v", progress)
	}
}

func TestNativeFetchLeavesMP3Untagged(t *testing.T) {
	v := sampleVideo()
	v.Formats = append(v.Formats, youtube.Format{ItagNo: 999, MimeType: "audio/mpeg", AverageBitrate: 128000, AudioChannels: 2})
	n := NewNative(&mockClient{video: v, payload: "raw-mp3"}, nil)
	dl, err := n.Fetch(context.Background(), FetchRequest{
		URL:      "https://youtu.be/abc123",
		Selector: "bestaudio[ext=mp3]",
		Audio:    true,
		Dir:      t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if dl.Ext != "mp3" || dl.Uploader != "Channel" {
		t.Fatalf("download = %+v", dl)
	}
	data, err := os.ReadFile(dl.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "raw-mp3" {
		t.Fatalf("content = %q, want the stream bytes untouched", data)
	}
}

func TestNativeMarksBotCheck(t *testing.T) {
	n := NewNative(&mockClient{videoErr: errors.New("Sign in to confirm you're not a bot")}, nil)
	_, err := n.Probe(context.Background(), "https://youtu.be/abc123")
	if !errors.Is(err, ErrBotCheck) {
		t.Fatalf("err = %v, want ErrBotCheck", err)
	}
}

func TestIsYouTubeHost(t *testing.T) {
	for raw, want := range map[string]bool{
		"https://www.youtube.com/watch?v=x": true,
		"https://youtu.be/x":                true,
		"https://music.youtube.com/watch":   true,
		"https://m.youtube.com/watch":       true,
		"https://example.com/watch":         false,
		"::bad":                             false,
	} {
		if got := IsYouTubeHost(raw); got != want {
			t.Errorf("IsYouTubeHost(%q) = %v", raw, got)
		}
	}
}
