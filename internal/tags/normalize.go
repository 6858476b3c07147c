// Package tags turns stored tag cells into clean ordered tag lists.
//
// Rows written over the years encode keyword and category cells in several
// ways: JSON arrays, single-quoted pseudo-JSON, comma separated strings, bare
// words. Every reader goes through Normalize; nothing else should inspect the
// raw cell text.
package tags

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCategory is stored when an entry has no recoverable category.
const DefaultCategory = "기타"

var missingSentinels = map[string]bool{
	"nan":  true,
	"none": true,
	"null": true,
}

var stripper = strings.NewReplacer("[", "", "]", "", `"`, "", "'", "")

// Normalize converts a cell value into an ordered tag list. It never panics;
// anything it cannot interpret yields a copy of fallback.
func Normalize(value any, fallback []string) (out []string) {
	defer func() {
		if recover() != nil {
			out = clone(fallback)
		}
	}()

	switch v := value.(type) {
	case []string:
		return v
	case []any:
		return fromAny(v, fallback)
	case string:
		return fromString(v, fallback)
	default:
		return clone(fallback)
	}
}

// Keywords normalizes a keyword cell; the fallback is an empty list.
func Keywords(value any) []string {
	return Normalize(value, []string{})
}

// Categories normalizes a category cell, defaulting to def.
func Categories(value any, def string) []string {
	if def == "" {
		def = DefaultCategory
	}
	return Normalize(value, []string{def})
}

// Encode renders tags the way cells are written: a JSON array of strings.
func Encode(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func fromString(s string, fallback []string) []string {
	s = strings.TrimSpace(s)
	if s == "" || missingSentinels[strings.ToLower(s)] {
		return clone(fallback)
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if items, ok := decodeList(s); ok {
			return orFallback(items, fallback)
		}
		// Older rows were written with Python-style single quotes.
		if items, ok := decodeList(strings.ReplaceAll(s, "'", `"`)); ok {
			return orFallback(items, fallback)
		}
	}

	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		var single string
		if err := json.Unmarshal([]byte(s), &single); err == nil {
			if single = strings.TrimSpace(single); single != "" && !strings.Contains(single, ",") {
				return []string{single}
			}
		}
	}

	if strings.Contains(s, ",") {
		var out []string
		for _, piece := range strings.Split(stripper.Replace(s), ",") {
			if piece = strings.TrimSpace(piece); piece != "" {
				out = append(out, piece)
			}
		}
		return orFallback(out, fallback)
	}

	if bare := strings.TrimSpace(stripper.Replace(s)); bare != "" {
		return []string{bare}
	}
	return clone(fallback)
}

func decodeList(s string) ([]string, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil || dec.More() {
		return nil, false
	}
	switch v := raw.(type) {
	case []any:
		return fromAny(v, nil), true
	default:
		return []string{fmt.Sprint(v)}, true
	}
}

func fromAny(items []any, fallback []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
		case string:
			out = append(out, v)
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	if len(out) == 0 && fallback != nil {
		return clone(fallback)
	}
	return out
}

func orFallback(items, fallback []string) []string {
	if len(items) == 0 {
		return clone(fallback)
	}
	return items
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
