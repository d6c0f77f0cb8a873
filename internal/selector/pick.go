package selector

import (
	"math"
	"strconv"
	"strings"

	"github.com/lvcoi/ytdl-web/internal/formats"
)

// Pick walks the clauses in order and returns the format chosen by the
// first clause that matches anything. Formats with an unknown value for a
// filtered attribute never match that filter.
func Pick(list []formats.RawFormat, clauses []Clause) (formats.RawFormat, bool) {
	for _, clause := range clauses {
		var candidates []formats.RawFormat
		for _, f := range list {
			if matchesBase(f, clause.Base) && matchesAll(f, clause.Filters) {
				candidates = append(candidates, f)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		return choose(candidates, strings.HasPrefix(clause.Base, "worst")), true
	}
	return formats.RawFormat{}, false
}

func matchesBase(f formats.RawFormat, base string) bool {
	switch base {
	case "bestaudio", "worstaudio":
		return f.HasAudio() && !f.HasVideo()
	case "bestvideo", "worstvideo":
		return f.HasVideo() && !f.HasAudio()
	default:
		return f.HasAudio() && f.HasVideo()
	}
}

func matchesAll(f formats.RawFormat, filters []Filter) bool {
	for _, flt := range filters {
		if !matches(f, flt) {
			return false
		}
	}
	return true
}

func matches(f formats.RawFormat, flt Filter) bool {
	if flt.Key == "ext" {
		ext := f.Extension()
		want := strings.ToLower(flt.Value)
		switch flt.Op {
		case "=":
			return ext == want
		case "!=":
			return ext != want
		}
		return false
	}

	have, ok := numeric(f, flt.Key)
	if !ok {
		return false
	}
	want, err := strconv.ParseFloat(flt.Value, 64)
	if err != nil {
		// Digit runs too long for a float still read as "very large".
		want = math.MaxFloat64
	}
	switch flt.Op {
	case "=":
		return have == want
	case "!=":
		return have != want
	case "<":
		return have < want
	case "<=":
		return have <= want
	case ">":
		return have > want
	case ">=":
		return have >= want
	}
	return false
}

func numeric(f formats.RawFormat, key string) (float64, bool) {
	switch key {
	case "height":
		if f.Height != nil {
			return float64(*f.Height), true
		}
	case "width":
		if f.Width != nil {
			return float64(*f.Width), true
		}
	case "fps":
		if f.FPS != nil {
			return *f.FPS, true
		}
	case "abr":
		if f.ABR != nil {
			return *f.ABR, true
		}
	}
	return 0, false
}

// choose ranks by height, fps, audio bitrate and size; ties keep the
// earlier format.
func choose(candidates []formats.RawFormat, worst bool) formats.RawFormat {
	picked := candidates[0]
	for _, f := range candidates[1:] {
		c := compareQuality(f, picked)
		if (!worst && c > 0) || (worst && c < 0) {
			picked = f
		}
	}
	return picked
}

func compareQuality(a, b formats.RawFormat) int {
	keys := []func(formats.RawFormat) float64{
		func(f formats.RawFormat) float64 { return intOr(f.Height) },
		func(f formats.RawFormat) float64 { return floatOr(f.FPS) },
		func(f formats.RawFormat) float64 { return floatOr(f.ABR) },
		func(f formats.RawFormat) float64 {
			if f.Filesize == nil {
				return 0
			}
			return float64(*f.Filesize)
		},
	}
	for _, key := range keys {
		av, bv := key(a), key(b)
		if av > bv {
			return 1
		}
		if av < bv {
			return -1
		}
	}
	return 0
}

func intOr(v *int) float64 {
	if v == nil {
		return 0
	}
	return float64(*v)
}

func floatOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
