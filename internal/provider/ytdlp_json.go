package provider

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/lvcoi/ytdl-web/internal/formats"
)

// ytdlpInfo mirrors the parts of yt-dlp's info JSON we read. Numbers are
// decoded as floats because yt-dlp emits both ints and floats for them.
type ytdlpInfo struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	Channel    string        `json:"channel"`
	Duration   *float64      `json:"duration"`
	Thumbnail  string        `json:"thumbnail"`
	WebpageURL string        `json:"webpage_url"`
	Ext        string        `json:"ext"`
	URL        string        `json:"url"`
	Formats    []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       *string  `json:"format_id"`
	Ext            *string  `json:"ext"`
	VCodec         *string  `json:"vcodec"`
	ACodec         *string  `json:"acodec"`
	Height         *float64 `json:"height"`
	Width          *float64 `json:"width"`
	FPS            *float64 `json:"fps"`
	ABR            *float64 `json:"abr"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	Resolution     *string  `json:"resolution"`
	FormatNote     *string  `json:"format_note"`
	URL            *string  `json:"url"`
}

func parseInfo(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, errors.New("empty info JSON")
	}
	var raw ytdlpInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	info := &Info{
		ID:         raw.ID,
		Title:      raw.Title,
		Uploader:   raw.Uploader,
		Thumbnail:  raw.Thumbnail,
		WebpageURL: raw.WebpageURL,
		Ext:        raw.Ext,
		URL:        raw.URL,
		Formats:    make([]formats.RawFormat, 0, len(raw.Formats)),
	}
	if info.Uploader == "" {
		info.Uploader = raw.Channel
	}
	if raw.Duration != nil && *raw.Duration > 0 {
		info.Duration = time.Duration(*raw.Duration * float64(time.Second))
	}
	for _, f := range raw.Formats {
		info.Formats = append(info.Formats, f.toRaw())
	}
	return info, nil
}

func (f ytdlpFormat) toRaw() formats.RawFormat {
	out := formats.RawFormat{
		FormatID:   f.FormatID,
		Ext:        f.Ext,
		VCodec:     f.VCodec,
		ACodec:     f.ACodec,
		FPS:        f.FPS,
		ABR:        f.ABR,
		Resolution: f.Resolution,
		FormatNote: f.FormatNote,
		URL:        f.URL,
	}
	out.Height = toInt(f.Height)
	out.Width = toInt(f.Width)
	switch {
	case f.Filesize != nil:
		out.Filesize = toInt64(f.Filesize)
	case f.FilesizeApprox != nil:
		out.Filesize = toInt64(f.FilesizeApprox)
	}
	return out
}

func toInt(v *float64) *int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	i := int(math.Round(*v))
	return &i
}

func toInt64(v *float64) *int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	i := int64(math.Round(*v))
	return &i
}
