// Package formats reduces the raw format descriptors reported by a media
// provider to the short list of renditions a user can pick from.
package formats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind classifies a normalized rendition by the streams it carries.
type Kind int

const (
	VideoAudio Kind = iota
	AudioOnly
)

func (k Kind) String() string {
	switch k {
	case AudioOnly:
		return "audio"
	default:
		return "video"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "video":
		*k = VideoAudio
	case "audio":
		*k = AudioOnly
	default:
		return fmt.Errorf("unknown format kind %q", s)
	}
	return nil
}

// RawFormat is one encoding variant as reported by the provider. Every
// attribute may be missing, so each one is a pointer and nil means absent.
type RawFormat struct {
	FormatID   *string  `json:"format_id,omitempty"`
	Ext        *string  `json:"ext,omitempty"`
	VCodec     *string  `json:"vcodec,omitempty"`
	ACodec     *string  `json:"acodec,omitempty"`
	Height     *int     `json:"height,omitempty"`
	Width      *int     `json:"width,omitempty"`
	FPS        *float64 `json:"fps,omitempty"`
	ABR        *float64 `json:"abr,omitempty"`
	Filesize   *int64   `json:"filesize,omitempty"`
	Resolution *string  `json:"resolution,omitempty"`
	FormatNote *string  `json:"format_note,omitempty"`
	URL        *string  `json:"url,omitempty"`
}

// HasVideo reports whether the descriptor names a real video codec.
func (f RawFormat) HasVideo() bool { return codecPresent(f.VCodec) }

// HasAudio reports whether the descriptor names a real audio codec.
func (f RawFormat) HasAudio() bool { return codecPresent(f.ACodec) }

// ID returns the format id or "" when the provider did not report one.
func (f RawFormat) ID() string { return deref(f.FormatID) }

// Extension returns the lower-cased container tag or "".
func (f RawFormat) Extension() string {
	return strings.ToLower(strings.TrimSpace(deref(f.Ext)))
}

// Format is one presentable rendition.
type Format struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	Container    string `json:"container"`
	QualityLabel string `json:"quality_label"`
	Filesize     *int64 `json:"filesize,omitempty"`
}

// Result holds the two rendition lists produced by Normalize.
type Result struct {
	VideoFormats []Format `json:"video_formats"`
	AudioFormats []Format `json:"audio_formats"`
}

// AudioContainer is the container reported for every audio-only rendition;
// audio downloads are always delivered as mp3.
const AudioContainer = "mp3"

var videoContainers = map[string]struct{}{
	"mp4":  {},
	"m4a":  {},
	"webm": {},
}

var audioSources = map[string]struct{}{
	"mp4":  {},
	"m4a":  {},
	"webm": {},
	"mp3":  {},
}

type dedupKey struct {
	container string
	label     string
}

// Normalize classifies, filters and deduplicates raw descriptors. Order is
// preserved and the first descriptor wins on a (container, label) or non-empty
// id collision, so the output is a pure function of the input sequence.
func Normalize(raw []RawFormat) Result {
	res := Result{
		VideoFormats: []Format{},
		AudioFormats: []Format{},
	}
	seenKeys := make(map[dedupKey]struct{}, len(raw))
	seenIDs := make(map[string]struct{}, len(raw))

	for _, f := range raw {
		out, ok := classify(f)
		if !ok {
			continue
		}
		key := dedupKey{container: out.Container, label: out.QualityLabel}
		if _, dup := seenKeys[key]; dup {
			continue
		}
		// Descriptors without a format_id only dedup on the key.
		if out.ID != "" {
			if _, dup := seenIDs[out.ID]; dup {
				continue
			}
			seenIDs[out.ID] = struct{}{}
		}
		seenKeys[key] = struct{}{}

		if out.Kind == AudioOnly {
			res.AudioFormats = append(res.AudioFormats, out)
		} else {
			res.VideoFormats = append(res.VideoFormats, out)
		}
	}
	return res
}

func classify(f RawFormat) (Format, bool) {
	if !f.HasAudio() {
		return Format{}, false
	}
	ext := f.Extension()
	out := Format{ID: f.ID()}
	if f.Filesize != nil {
		size := *f.Filesize
		out.Filesize = &size
	}

	if !f.HasVideo() {
		if _, ok := audioSources[ext]; !ok {
			return Format{}, false
		}
		out.Kind = AudioOnly
		out.Container = AudioContainer
		out.QualityLabel = audioLabel(f.ABR)
		return out, true
	}

	if _, ok := videoContainers[ext]; !ok {
		return Format{}, false
	}
	out.Kind = VideoAudio
	out.Container = ext
	out.QualityLabel = videoLabel(f)
	return out, true
}

func videoLabel(f RawFormat) string {
	if f.Resolution != nil {
		if label, ok := resolutionLabel(*f.Resolution); ok {
			return label
		}
	}
	if f.Height != nil && *f.Height > 0 {
		return strconv.Itoa(*f.Height) + "p"
	}
	return "unknown"
}

// resolutionLabel accepts "720p" style labels as-is and rewrites the
// "1280x720" form yt-dlp reports into "720p".
func resolutionLabel(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "audio only") {
		return "", false
	}
	if w, h, ok := strings.Cut(strings.ToLower(s), "x"); ok {
		if _, err := strconv.Atoi(w); err == nil {
			if height, err := strconv.Atoi(h); err == nil && height > 0 {
				return strconv.Itoa(height) + "p", true
			}
		}
	}
	return s, true
}

func audioLabel(abr *float64) string {
	if abr == nil || *abr <= 0 || math.IsNaN(*abr) || math.IsInf(*abr, 0) {
		return "Audio only"
	}
	return fmt.Sprintf("Audio only (%dkbps)", int64(math.Round(*abr)))
}

func codecPresent(codec *string) bool {
	if codec == nil {
		return false
	}
	c := strings.ToLower(strings.TrimSpace(*codec))
	return c != "" && c != "none"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to v, for filling optional RawFormat fields.
func Ptr[T any](v T) *T {
	return &v
}
