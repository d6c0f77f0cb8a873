package downloader

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL accepts absolute http(s) URLs and returns them re-encoded.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", wrapCategory(CategoryInvalidURL, errors.New("url is required"))
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: %w", err))
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", wrapCategory(CategoryInvalidURL, errors.New("invalid URL: missing scheme or host"))
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", wrapCategory(CategoryInvalidURL, fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme))
	}
	return parsed.String(), nil
}

// CanonicalURL validates raw and rewrites YouTube variants to the watch form
// so equal videos share a cache key.
func CanonicalURL(raw string) (string, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return "", err
	}
	return NormalizeYouTubeURL(ConvertMusicURL(u)), nil
}

func hostOf(parsed *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// ConvertMusicURL rewrites music.youtube.com links to www.youtube.com.
func ConvertMusicURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || hostOf(parsed) != "music.youtube.com" {
		return u
	}
	parsed.Host = "www.youtube.com"
	query := parsed.Query()
	query.Del("si")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// NormalizeYouTubeURL converts youtu.be, /shorts/ and /live/ links to
// watch?v=.
func NormalizeYouTubeURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	host := hostOf(parsed)
	if host != "youtube.com" && host != "m.youtube.com" && host != "youtu.be" {
		return u
	}
	query := parsed.Query()
	if host == "youtu.be" {
		id := strings.Trim(parsed.Path, "/")
		if id == "" {
			return u
		}
		query.Set("v", id)
		query.Del("si")
		return (&url.URL{Scheme: "https", Host: "www.youtube.com", Path: "/watch", RawQuery: query.Encode()}).String()
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[1] == "" || (parts[0] != "live" && parts[0] != "shorts") {
		return u
	}
	if query.Get("v") == "" {
		query.Set("v", parts[1])
	}
	parsed.Path = "/watch"
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
