package db

import (
	"net/url"
	"strings"
)

// Signals are the hints a download exposes about what kind of media it is.
type Signals struct {
	SourceURL string
	Uploader  string
	Title     string
	AudioOnly bool
}

// ClassifyMediaType tags a download as "music", "podcast" or "video".
//
//   - music: music.youtube.com source, a " - Topic" uploader, or an audio
//     request without other signals
//   - podcast: "podcast" in the title or uploader
//   - video: everything else
func ClassifyMediaType(s Signals) string {
	if u, err := url.Parse(s.SourceURL); err == nil && strings.EqualFold(u.Hostname(), "music.youtube.com") {
		return "music"
	}
	if strings.HasSuffix(s.Uploader, " - Topic") {
		return "music"
	}
	lowerTitle := strings.ToLower(s.Title)
	lowerUploader := strings.ToLower(s.Uploader)
	if strings.Contains(lowerTitle, "podcast") || strings.Contains(lowerUploader, "podcast") {
		return "podcast"
	}
	if s.AudioOnly {
		return "music"
	}
	return "video"
}
