// Package journal implements the lesson log operations on top of a whole-table
// store: every call reads the full sheet, changes it in memory, and writes it
// back. Concurrent edits are last-writer-wins.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaille/lessonlog/internal/classifier"
	"github.com/pbaille/lessonlog/internal/domain"
	"github.com/pbaille/lessonlog/internal/store"
	"github.com/pbaille/lessonlog/internal/tags"
)

var (
	ErrNotFound             = errors.New("entry not found")
	ErrAmbiguous            = errors.New("id prefix matches several entries")
	ErrInvalid              = errors.New("invalid entry")
	ErrClassificationFailed = errors.New("classification failed")
)

// What to do with an entry whose classification failed
const (
	// PolicySave stores the entry with the sentinel tags
	PolicySave = "save"
	// PolicyBlock refuses to store the entry
	PolicyBlock = "block"
)

// Classifier produces tags for an entry text
type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Result, error)
}

// Options configures a Service
type Options struct {
	Policy          string
	DefaultCategory string
	Now             func() time.Time
	NewID           func() string
}

// Outcome reports how the classification of a saved entry went
type Outcome struct {
	Model string
	Err   error
}

// Degraded reports whether the entry carries fallback tags
func (o Outcome) Degraded() bool {
	return o.Err != nil
}

// Service runs lesson log operations
type Service struct {
	table  store.Table
	clf    Classifier
	opts   Options
	logger *zap.Logger
}

// New creates a Service
func New(table store.Table, clf Classifier, opts Options, logger *zap.Logger) *Service {
	if opts.Policy == "" {
		opts.Policy = PolicySave
	}
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = tags.DefaultCategory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{table: table, clf: clf, opts: opts, logger: logger}
}

// List returns the entries matching f, newest first. When the store cannot be
// read it returns an empty list along with the error so callers can warn and
// keep going.
func (s *Service) List(ctx context.Context, f domain.Filter) ([]domain.Entry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("read entries failed", zap.Error(err))
		return []domain.Entry{}, err
	}

	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].Date.Before(out[i].Date)
	})
	return out, nil
}

// Get returns the entry with exactly this id
func (s *Service) Get(ctx context.Context, id string) (domain.Entry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return domain.Entry{}, err
	}
	if i := indexOf(entries, id); i >= 0 {
		return entries[i], nil
	}
	return domain.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Resolve finds an entry by full id or by a unique id prefix
func (s *Service) Resolve(ctx context.Context, prefix string) (domain.Entry, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return domain.Entry{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	entries, err := s.load(ctx)
	if err != nil {
		return domain.Entry{}, err
	}
	if i := indexOf(entries, prefix); i >= 0 {
		return entries[i], nil
	}

	var found []domain.Entry
	for _, e := range entries {
		if strings.HasPrefix(e.ID, prefix) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return domain.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return domain.Entry{}, fmt.Errorf("%w: %s (%d entries)", ErrAmbiguous, prefix, len(found))
	}
}

// Create classifies the draft and appends it as a new entry
func (s *Service) Create(ctx context.Context, d domain.Draft) (domain.Entry, Outcome, error) {
	d, err := s.validate(d)
	if err != nil {
		return domain.Entry{}, Outcome{}, err
	}

	result, outcome, err := s.classify(ctx, d.Text)
	if err != nil {
		return domain.Entry{}, outcome, err
	}

	rows, err := s.table.Read(ctx)
	if err != nil {
		return domain.Entry{}, outcome, fmt.Errorf("read entries: %w", err)
	}

	entry := domain.Entry{
		ID:         s.opts.NewID(),
		Date:       d.Date,
		Writer:     d.Writer,
		Text:       d.Text,
		Keywords:   result.Keywords,
		Categories: result.Categories,
	}
	rows = append(rows, toRow(entry))

	if err := s.table.Write(ctx, rows); err != nil {
		return domain.Entry{}, outcome, fmt.Errorf("write entries: %w", err)
	}

	s.logger.Info("entry created",
		zap.String("id", entry.ID),
		zap.String("writer", entry.Writer),
		zap.Bool("degraded", outcome.Degraded()))
	return entry, outcome, nil
}

// Update overwrites an entry's date, writer and text and re-runs classification
func (s *Service) Update(ctx context.Context, id string, d domain.Draft) (domain.Entry, Outcome, error) {
	d, err := s.validate(d)
	if err != nil {
		return domain.Entry{}, Outcome{}, err
	}

	rows, err := s.table.Read(ctx)
	if err != nil {
		return domain.Entry{}, Outcome{}, fmt.Errorf("read entries: %w", err)
	}
	i := rowIndex(rows, id)
	if i < 0 {
		return domain.Entry{}, Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	result, outcome, err := s.classify(ctx, d.Text)
	if err != nil {
		return domain.Entry{}, outcome, err
	}

	entry := domain.Entry{
		ID:         id,
		Date:       d.Date,
		Writer:     d.Writer,
		Text:       d.Text,
		Keywords:   result.Keywords,
		Categories: result.Categories,
	}
	rows[i] = toRow(entry)

	if err := s.table.Write(ctx, rows); err != nil {
		return domain.Entry{}, outcome, fmt.Errorf("write entries: %w", err)
	}

	s.logger.Info("entry updated", zap.String("id", entry.ID), zap.Bool("degraded", outcome.Degraded()))
	return entry, outcome, nil
}

// Delete removes the entry with this id; other rows are untouched
func (s *Service) Delete(ctx context.Context, id string) error {
	rows, err := s.table.Read(ctx)
	if err != nil {
		return fmt.Errorf("read entries: %w", err)
	}
	i := rowIndex(rows, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rows = append(rows[:i], rows[i+1:]...)
	if err := s.table.Write(ctx, rows); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}

	s.logger.Info("entry deleted", zap.String("id", id))
	return nil
}

// Preview classifies text without storing anything
func (s *Service) Preview(ctx context.Context, text string) (classifier.Result, error) {
	if strings.TrimSpace(text) == "" {
		return classifier.Result{}, fmt.Errorf("%w: text is required", ErrInvalid)
	}
	return s.clf.Classify(ctx, text)
}

func (s *Service) classify(ctx context.Context, text string) (classifier.Result, Outcome, error) {
	result, err := s.clf.Classify(ctx, text)
	outcome := Outcome{Model: result.Model, Err: err}
	if err == nil {
		return result, outcome, nil
	}

	s.logger.Warn("classification failed",
		zap.String("policy", s.opts.Policy),
		zap.Error(err))
	if s.opts.Policy == PolicyBlock {
		return classifier.Result{}, outcome, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}
	return result, outcome, nil
}

func (s *Service) validate(d domain.Draft) (domain.Draft, error) {
	d = d.Normalize(s.opts.Now())
	if d.Writer == "" {
		return d, fmt.Errorf("%w: writer is required", ErrInvalid)
	}
	if d.Text == "" {
		return d, fmt.Errorf("%w: text is required", ErrInvalid)
	}
	return d, nil
}

func (s *Service) load(ctx context.Context) ([]domain.Entry, error) {
	rows, err := s.table.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	entries := make([]domain.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, toEntry(r, s.opts.DefaultCategory))
	}
	return entries, nil
}

func indexOf(entries []domain.Entry, id string) int {
	if id == "" {
		return -1
	}
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func rowIndex(rows []store.Row, id string) int {
	if id == "" {
		return -1
	}
	for i, r := range rows {
		if strings.TrimSpace(r.ID) == id {
			return i
		}
	}
	return -1
}
