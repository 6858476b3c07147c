package domain

import (
	"strings"
	"time"
)

// Entry is one logged lesson
type Entry struct {
	ID         string   `json:"id"`
	Date       Date     `json:"date"`
	Writer     string   `json:"writer"`
	Text       string   `json:"text"`
	Keywords   []string `json:"keywords"`
	Categories []string `json:"categories"`
}

// Draft holds the author-supplied fields of an entry
type Draft struct {
	Date   Date   `json:"date"`
	Writer string `json:"writer"`
	Text   string `json:"text"`
}

// Normalize trims the draft and fills a missing date with today
func (d Draft) Normalize(now time.Time) Draft {
	d.Writer = strings.TrimSpace(d.Writer)
	d.Text = strings.TrimSpace(d.Text)
	if d.Date.IsZero() {
		d.Date = DateOf(now)
	}
	return d
}

// Filter narrows a list of entries. Zero values match everything.
type Filter struct {
	Categories []string `json:"categories,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Writer     string   `json:"writer,omitempty"`
	From       Date     `json:"from"`
	To         Date     `json:"to"`
	Query      string   `json:"query,omitempty"`
}

// Match reports whether e satisfies every set criterion of f
func (f Filter) Match(e Entry) bool {
	if len(f.Categories) > 0 && !anyOf(e.Categories, f.Categories) {
		return false
	}
	if len(f.Keywords) > 0 && !anyOf(e.Keywords, f.Keywords) {
		return false
	}
	if f.Writer != "" && !strings.EqualFold(strings.TrimSpace(e.Writer), strings.TrimSpace(f.Writer)) {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && f.To.Before(e.Date) {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(e.Text), strings.ToLower(q)) {
			return false
		}
	}
	return true
}

func anyOf(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
