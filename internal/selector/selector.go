// Package selector turns a user's quality request into a format selector in
// the yt-dlp selection language, and evaluates such selectors over raw
// format descriptors for providers that do their own picking.
package selector

import (
	"strings"
)

// Request is what a caller asks for: a quality ("best", "worst", "720p")
// and a download kind ("mp4" or "mp3").
type Request struct {
	Quality    string `json:"quality"`
	FormatType string `json:"format"`
}

// Audio reports whether the request asks for an audio-only download.
func (r Request) Audio() bool {
	return IsAudio(r.FormatType)
}

// Ext is the extension the delivered file will carry.
func (r Request) Ext() string {
	if r.Audio() {
		return "mp3"
	}
	return "mp4"
}

// Filter is one bracketed constraint of a clause, e.g. [height<=720].
type Filter struct {
	Key   string
	Op    string
	Value string
}

func (f Filter) String() string {
	return "[" + f.Key + f.Op + f.Value + "]"
}

// Clause is one alternative of a selector: a base such as "best" or
// "bestaudio" narrowed by filters.
type Clause struct {
	Base    string
	Filters []Filter
}

func (c Clause) String() string {
	var b strings.Builder
	b.WriteString(c.Base)
	for _, f := range c.Filters {
		b.WriteString(f.String())
	}
	return b.String()
}

// Join renders clauses as a "/"-separated fallback chain.
func Join(clauses []Clause) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "/")
}

// IsAudio reports whether a format type names an audio-only download.
func IsAudio(formatType string) bool {
	switch strings.ToLower(strings.TrimSpace(formatType)) {
	case "mp3", "audio":
		return true
	}
	return false
}

// Compile returns the selector string for a request. It accepts any input
// and never fails: unusable quality strings fall back to "best".
func Compile(quality, formatType string) string {
	return Join(Chain(quality, formatType))
}

// CompileRequest is Compile for a Request value.
func CompileRequest(r Request) string {
	return Compile(r.Quality, r.FormatType)
}

// Chain returns the ordered fallback clauses Compile renders.
func Chain(quality, formatType string) []Clause {
	if IsAudio(formatType) {
		return []Clause{
			{Base: "bestaudio"},
			{Base: "best"},
		}
	}

	// Quality keywords are case-insensitive, so "WORST" selects the worst chain.
	q := strings.ToLower(strings.TrimSpace(quality))
	switch q {
	case "best":
		return extPreferred("best")
	case "worst":
		return extPreferred("worst")
	}

	height, ok := firstDigits(q)
	if !ok {
		return extPreferred("best")
	}
	capped := Filter{Key: "height", Op: "<=", Value: height}
	mp4 := Filter{Key: "ext", Op: "=", Value: "mp4"}
	return []Clause{
		{Base: "best", Filters: []Filter{capped, mp4}},
		{Base: "best", Filters: []Filter{capped}},
		{Base: "best", Filters: []Filter{mp4}},
		{Base: "best"},
	}
}

func extPreferred(base string) []Clause {
	return []Clause{
		{Base: base, Filters: []Filter{{Key: "ext", Op: "=", Value: "mp4"}}},
		{Base: base},
	}
}

// firstDigits returns the first run of ASCII digits in s with leading
// zeros removed ("0720" -> "720", "000" -> "0").
func firstDigits(s string) (string, bool) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return trimZeros(s[start:i]), true
		}
	}
	if start >= 0 {
		return trimZeros(s[start:]), true
	}
	return "", false
}

func trimZeros(digits string) string {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
