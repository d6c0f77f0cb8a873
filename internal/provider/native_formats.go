package provider

import (
	"mime"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytdl-web/internal/formats"
)

const noCodec = "none"

// rawFormat maps a kkdai format onto the yt-dlp style descriptor. Codecs
// come from the mime type: "video/mp4; codecs=\"avc1.42001E, mp4a.40.2\"".
func rawFormat(f *youtube.Format) formats.RawFormat {
	out := formats.RawFormat{
		FormatID: formats.Ptr(strconv.Itoa(f.ItagNo)),
	}
	if f.URL != "" {
		out.URL = formats.Ptr(f.URL)
	}

	mediaType, params, err := mime.ParseMediaType(f.MimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(f.MimeType, ";", 2)[0])
	}
	codecs := splitCodecs(params["codecs"])

	if ext := mimeExt(f.MimeType); ext != "" {
		out.Ext = formats.Ptr(ext)
	}

	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		out.VCodec = formats.Ptr(noCodec)
		out.ACodec = formats.Ptr(firstOr(codecs, "unknown"))
	case strings.HasPrefix(mediaType, "video/"):
		out.VCodec = formats.Ptr(firstOr(codecs, "unknown"))
		switch {
		case len(codecs) >= 2:
			out.ACodec = formats.Ptr(codecs[1])
		case f.AudioChannels > 0 && len(codecs) == 0:
			out.ACodec = formats.Ptr("unknown")
		default:
			out.ACodec = formats.Ptr(noCodec)
		}
	}

	if f.Height > 0 {
		out.Height = formats.Ptr(f.Height)
	}
	if f.Width > 0 {
		out.Width = formats.Ptr(f.Width)
	}
	if f.FPS > 0 {
		out.FPS = formats.Ptr(float64(f.FPS))
	}
	if out.HasAudio() {
		bitrate := f.AverageBitrate
		if bitrate <= 0 {
			bitrate = f.Bitrate
		}
		if bitrate > 0 && !out.HasVideo() {
			out.ABR = formats.Ptr(float64(bitrate) / 1000)
		}
	}
	if f.ContentLength > 0 {
		out.Filesize = formats.Ptr(f.ContentLength)
	}
	if f.QualityLabel != "" {
		out.Resolution = formats.Ptr(f.QualityLabel)
	}
	if f.Quality != "" {
		out.FormatNote = formats.Ptr(f.Quality)
	}
	return out
}

// mimeExt returns the file extension for a stream mime type. Audio in an
// mp4 container is reported as m4a.
func mimeExt(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	kind, sub, ok := strings.Cut(strings.ToLower(mediaType), "/")
	if !ok || sub == "" {
		return ""
	}
	switch {
	case kind == "audio" && sub == "mp4":
		return "m4a"
	case sub == "mpeg" && kind == "audio":
		return "mp3"
	case sub == "3gpp":
		return "3gp"
	}
	return sub
}

func splitCodecs(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
