package selector

import (
	"fmt"
	"strings"
)

var bases = map[string]struct{}{
	"best":       {},
	"worst":      {},
	"bestaudio":  {},
	"worstaudio": {},
	"bestvideo":  {},
	"worstvideo": {},
}

var filterKeys = map[string]struct{}{
	"ext":    {},
	"height": {},
	"width":  {},
	"fps":    {},
	"abr":    {},
}

// Ops are checked longest first so "<=" is not read as "<".
var filterOps = []string{"<=", ">=", "!=", "=", "<", ">"}

// Parse reads a selector such as "best[height<=720][ext=mp4]/best" back
// into clauses. Only the subset of the language Compile emits, plus the
// video/audio bases, is understood.
func Parse(s string) ([]Clause, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty selector")
	}
	var clauses []Clause
	for _, part := range strings.Split(s, "/") {
		clause, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func parseClause(s string) (Clause, error) {
	if s == "" {
		return Clause{}, fmt.Errorf("empty selector clause")
	}
	if strings.Contains(s, "+") {
		return Clause{}, fmt.Errorf("merge selectors are not supported: %s", s)
	}

	base := s
	mods := ""
	if idx := strings.Index(s, "["); idx >= 0 {
		base = s[:idx]
		mods = s[idx:]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	if _, ok := bases[base]; !ok {
		return Clause{}, fmt.Errorf("unknown selector: %s", base)
	}

	clause := Clause{Base: base}
	for mods != "" {
		if mods[0] != '[' {
			return Clause{}, fmt.Errorf("unknown modifier syntax: %s", mods)
		}
		end := strings.Index(mods, "]")
		if end < 0 {
			return Clause{}, fmt.Errorf("unterminated modifier: %s", mods)
		}
		f, err := parseFilter(mods[1:end])
		if err != nil {
			return Clause{}, err
		}
		clause.Filters = append(clause.Filters, f)
		mods = strings.TrimSpace(mods[end+1:])
	}
	return clause, nil
}

func parseFilter(s string) (Filter, error) {
	for _, op := range filterOps {
		idx := strings.Index(s, op)
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(s[:idx]))
		val := strings.TrimSpace(s[idx+len(op):])
		if _, ok := filterKeys[key]; !ok {
			return Filter{}, fmt.Errorf("unknown modifier key: %s", key)
		}
		if val == "" {
			return Filter{}, fmt.Errorf("missing value in modifier: %s", s)
		}
		return Filter{Key: key, Op: op, Value: val}, nil
	}
	return Filter{}, fmt.Errorf("unknown modifier syntax: %s", s)
}
