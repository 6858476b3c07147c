package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/lessonlog/internal/tags"
)

var (
	// ErrUnavailable means no model produced a usable classification.
	ErrUnavailable = errors.New("classification unavailable")
	// ErrNoCredentials means the generator could not be built for lack of an API key.
	ErrNoCredentials = errors.New("no API key configured")
)

// Generator sends one prompt to one model of a text-generation service
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, model, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Category is a suggested category with its standard keywords
type Category struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Result holds the tags for one text. Model names the identifier that
// produced it and is empty for the sentinel result.
type Result struct {
	Keywords   []string `json:"keywords"`
	Categories []string `json:"categories"`
	Model      string   `json:"model,omitempty"`
}

// Succeeded reports whether a model produced r
func (r Result) Succeeded() bool {
	return r.Model != ""
}

// Options configures a Client
type Options struct {
	Models             []string
	Vocabulary         []Category
	DefaultCategory    string
	FallbackKeyword    string
	UnavailableKeyword string
	Placeholders       []string
	StrictCategories   bool
	RetryDelay         time.Duration
	AttemptTimeout     time.Duration
}

// DefaultOptions mirrors the vocabulary and tokens the team has always used.
func DefaultOptions() Options {
	return Options{
		Models:             []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
		Vocabulary:         DefaultVocabulary(),
		DefaultCategory:    tags.DefaultCategory,
		FallbackKeyword:    "general",
		UnavailableKeyword: "AI연동실패",
		Placeholders:       []string{"분석불가", "unparseable"},
		RetryDelay:         time.Second,
		AttemptTimeout:     30 * time.Second,
	}
}

// DefaultVocabulary is the standard category table
func DefaultVocabulary() []Category {
	return []Category{
		{Name: "기획", Keywords: []string{"기획의도", "정책수립", "일정관리", "데이터분석", "인사이트"}},
		{Name: "개발", Keywords: []string{"트러블슈팅", "리팩토링", "신기술도입", "코드리뷰", "성능개선", "유지보수"}},
		{Name: "디자인", Keywords: []string{"UI/UX", "디자인시스템", "사용성개선", "디자인가이드"}},
		{Name: "협업", Keywords: []string{"커뮤니케이션", "문서화", "회의문화", "피드백"}},
		{Name: "프로세스", Keywords: []string{"업무효율화", "자동화", "QA/테스트", "배포관리"}},
		{Name: tags.DefaultCategory},
	}
}

// Client classifies entry text by walking an ordered list of models
type Client struct {
	gen    Generator
	opts   Options
	logger *zap.Logger
}

// New creates a Client. gen may be nil when no credentials are configured;
// Classify then always returns the sentinel result.
func New(gen Generator, opts Options, logger *zap.Logger) *Client {
	def := DefaultOptions()
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = def.DefaultCategory
	}
	if opts.FallbackKeyword == "" {
		opts.FallbackKeyword = def.FallbackKeyword
	}
	if opts.UnavailableKeyword == "" {
		opts.UnavailableKeyword = def.UnavailableKeyword
	}
	if opts.Placeholders == nil {
		opts.Placeholders = def.Placeholders
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{gen: gen, opts: opts, logger: logger}
}

// Options returns the effective options
func (c *Client) Options() Options {
	return c.opts
}

// Sentinel is the result stored when no model could classify
func (c *Client) Sentinel() Result {
	return Result{
		Keywords:   []string{c.opts.UnavailableKeyword},
		Categories: []string{c.opts.DefaultCategory},
	}
}

// Classify returns the tags of the first model that answers with a parsable
// object. When every model fails it returns the sentinel result together
// with an error wrapping ErrUnavailable.
func (c *Client) Classify(ctx context.Context, text string) (Result, error) {
	if c.gen == nil {
		return c.Sentinel(), fmt.Errorf("%w: %w", ErrUnavailable, ErrNoCredentials)
	}
	if len(c.opts.Models) == 0 {
		return c.Sentinel(), fmt.Errorf("%w: no models configured", ErrUnavailable)
	}

	prompt := BuildPrompt(text, c.opts.Vocabulary)

	var errs []error
	for i, model := range c.opts.Models {
		if i > 0 {
			if err := wait(ctx, c.opts.RetryDelay); err != nil {
				errs = append(errs, err)
				break
			}
		}

		start := time.Now()
		result, err := c.attempt(ctx, model, prompt)
		if err == nil {
			c.logger.Info("classified",
				zap.String("model", model),
				zap.Strings("keywords", result.Keywords),
				zap.Strings("categories", result.Categories),
				zap.Duration("took", time.Since(start)))
			return result, nil
		}

		c.logger.Warn("classification attempt failed",
			zap.String("model", model),
			zap.Int("attempt", i+1),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", model, err))
	}

	return c.Sentinel(), fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

func (c *Client) attempt(ctx context.Context, model, prompt string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()

	if c.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()
	}

	resp, err := c.gen.Generate(ctx, model, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generate: %w", err)
	}

	result, err = parseResponse(resp, c.opts)
	if err != nil {
		return Result{}, err
	}
	result.Model = model
	return result, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
