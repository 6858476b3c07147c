package classifier

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

var errNotObject = errors.New("response is not a JSON object")

func parseResponse(resp string, opts Options) (Result, error) {
	cleaned := stripFences(resp)
	if !gjson.Valid(cleaned) {
		cleaned = outermostObject(cleaned)
	}
	if !gjson.Valid(cleaned) {
		return Result{}, fmt.Errorf("parse json: invalid (response: %s)", truncate(resp, 200))
	}

	root := gjson.Parse(cleaned)
	if !root.IsObject() {
		return Result{}, errNotObject
	}

	placeholders := make(map[string]bool, len(opts.Placeholders))
	for _, p := range opts.Placeholders {
		placeholders[strings.ToLower(strings.TrimSpace(p))] = true
	}

	var keywords []string
	for _, kw := range tagList(root.Get("keywords")) {
		if placeholders[strings.ToLower(kw)] {
			continue
		}
		keywords = append(keywords, kw)
	}
	if len(keywords) == 0 {
		keywords = []string{opts.FallbackKeyword}
	}

	field := root.Get("categories")
	if !field.Exists() {
		field = root.Get("category")
	}
	var categories []string
	for _, cat := range tagList(field) {
		if opts.StrictCategories && !inVocabulary(cat, opts.Vocabulary) {
			cat = opts.DefaultCategory
		}
		if !contains(categories, cat) {
			categories = append(categories, cat)
		}
	}
	if len(categories) == 0 {
		categories = []string{opts.DefaultCategory}
	}

	return Result{Keywords: keywords, Categories: categories}, nil
}

// tagList reads an array or a bare string field; blanks are dropped
func tagList(r gjson.Result) []string {
	var raw []string
	switch {
	case r.IsArray():
		for _, item := range r.Array() {
			switch item.Type {
			case gjson.String:
				raw = append(raw, item.Str)
			case gjson.Number:
				raw = append(raw, item.Raw)
			}
		}
	case r.Type == gjson.String:
		raw = append(raw, r.Str)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		body = strings.TrimPrefix(body, "json")
		body = strings.TrimPrefix(body, "JSON")
		s = body
	}
	return strings.TrimSpace(s)
}

func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func inVocabulary(name string, vocabulary []Category) bool {
	for _, cat := range vocabulary {
		if cat.Name == name {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
