package journal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/lessonlog/internal/domain"
	"github.com/pbaille/lessonlog/internal/store"
	"github.com/pbaille/lessonlog/internal/tags"
)

// toEntry is the only place raw cells become an Entry
func toEntry(r store.Row, defaultCategory string) domain.Entry {
	return domain.Entry{
		ID:         strings.TrimSpace(r.ID),
		Date:       domain.LenientDate(r.Date),
		Writer:     r.Writer,
		Text:       r.Text,
		Keywords:   tags.Keywords(r.Keywords),
		Categories: tags.Categories(r.Category, defaultCategory),
	}
}

func toRow(e domain.Entry) store.Row {
	return store.Row{
		ID:       e.ID,
		Date:     e.Date.String(),
		Writer:   e.Writer,
		Text:     e.Text,
		Keywords: tags.Encode(e.Keywords),
		Category: tags.Encode(e.Categories),
	}
}

// Import appends rows from another sheet. Tag cells are rewritten in the
// canonical encoding, rows without an id get one, and rows whose id is
// already present are skipped. It returns how many rows were added.
func (s *Service) Import(ctx context.Context, rows []store.Row) (int, error) {
	existing, err := s.table.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("read entries: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[strings.TrimSpace(r.ID)] = true
	}

	added := 0
	for _, r := range rows {
		e := toEntry(r, s.opts.DefaultCategory)
		if e.ID == "" {
			e.ID = s.opts.NewID()
		}
		if seen[e.ID] {
			s.logger.Debug("import skipped duplicate", zap.String("id", e.ID))
			continue
		}
		seen[e.ID] = true
		existing = append(existing, toRow(e))
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := s.table.Write(ctx, existing); err != nil {
		return 0, fmt.Errorf("write entries: %w", err)
	}
	s.logger.Info("entries imported", zap.Int("added", added))
	return added, nil
}

// Export returns every entry as canonical rows, in sheet order
func (s *Service) Export(ctx context.Context) ([]store.Row, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]store.Row, len(entries))
	for i, e := range entries {
		rows[i] = toRow(e)
	}
	return rows, nil
}
