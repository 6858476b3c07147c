// Package dashboard aggregates entries into the series behind the charts.
package dashboard

import (
	"math"
	"sort"
	"strings"

	"github.com/pbaille/lessonlog/internal/domain"
)

// Count is one bar or slice of a chart
type Count struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Share is a pie slice
type Share struct {
	Name    string  `json:"name"`
	Value   int     `json:"value"`
	Percent float64 `json:"percent"`
}

// Node is a treemap node. Category nodes have an empty Parent.
type Node struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Parent string `json:"parent"`
	Value  int    `json:"value"`
}

// Summary is everything the dashboard shows for a set of entries
type Summary struct {
	Total      int     `json:"total"`
	Writers    int     `json:"writers"`
	Categories []Share `json:"categories"`
	Keywords   []Count `json:"keywords"`
	ByWriter   []Count `json:"by_writer"`
	ByMonth    []Count `json:"by_month"`
}

func Categories(entries []domain.Entry) []Count {
	return tally(entries, func(e domain.Entry) []string { return e.Categories })
}

func Keywords(entries []domain.Entry) []Count {
	return tally(entries, func(e domain.Entry) []string { return e.Keywords })
}

func Writers(entries []domain.Entry) []Count {
	return tally(entries, func(e domain.Entry) []string {
		return []string{strings.TrimSpace(e.Writer)}
	})
}

// Months counts entries per "2006-01" month in calendar order. Undated
// entries are left out.
func Months(entries []domain.Entry) []Count {
	counts := tally(entries, func(e domain.Entry) []string {
		return []string{e.Date.Month()}
	})
	sort.Slice(counts, func(i, j int) bool { return counts[i].Name < counts[j].Name })
	return counts
}

// Pie turns counts into shares of their total
func Pie(counts []Count) []Share {
	total := 0
	for _, c := range counts {
		total += c.Value
	}
	shares := make([]Share, 0, len(counts))
	for _, c := range counts {
		s := Share{Name: c.Name, Value: c.Value}
		if total > 0 {
			s.Percent = math.Round(float64(c.Value)*1000/float64(total)) / 10
		}
		shares = append(shares, s)
	}
	return shares
}

// Treemap builds category nodes sized by entry count, each with one child per
// keyword seen under it.
func Treemap(entries []domain.Entry) []Node {
	var nodes []Node
	for _, cat := range Categories(entries) {
		nodes = append(nodes, Node{ID: cat.Name, Label: cat.Name, Value: cat.Value})

		var within []domain.Entry
		for _, e := range entries {
			if contains(e.Categories, cat.Name) {
				within = append(within, e)
			}
		}
		for _, kw := range Keywords(within) {
			nodes = append(nodes, Node{
				ID:     cat.Name + "/" + kw.Name,
				Label:  kw.Name,
				Parent: cat.Name,
				Value:  kw.Value,
			})
		}
	}
	return nodes
}

// Summarize computes every series at once
func Summarize(entries []domain.Entry) Summary {
	writers := Writers(entries)
	return Summary{
		Total:      len(entries),
		Writers:    len(writers),
		Categories: Pie(Categories(entries)),
		Keywords:   Keywords(entries),
		ByWriter:   writers,
		ByMonth:    Months(entries),
	}
}

// tally counts each distinct non-empty name once per entry and orders the
// result by count, then name.
func tally(entries []domain.Entry, names func(domain.Entry) []string) []Count {
	index := make(map[string]int)
	var counts []Count
	for _, e := range entries {
		seen := make(map[string]bool)
		for _, n := range names(e) {
			n = strings.TrimSpace(n)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			i, ok := index[n]
			if !ok {
				i = len(counts)
				index[n] = i
				counts = append(counts, Count{Name: n})
			}
			counts[i].Value++
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Value != counts[j].Value {
			return counts[i].Value > counts[j].Value
		}
		return counts[i].Name < counts[j].Name
	})
	if counts == nil {
		counts = []Count{}
	}
	return counts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == s {
			return true
		}
	}
	return false
}
