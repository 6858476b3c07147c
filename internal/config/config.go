// Package config loads lessonlog settings from a YAML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pbaille/lessonlog/internal/classifier"
	"github.com/pbaille/lessonlog/internal/journal"
	"github.com/pbaille/lessonlog/internal/store"
)

const (
	DefaultPath = "lessonlog.yaml"

	defaultAddr               = ":8080"
	defaultDBPath             = "./data/lessons.db"
	defaultHTTPTimeoutSeconds = 60
)

var defaultAnthropicModels = []string{"claude-sonnet-4-5-20250929", "claude-3-5-haiku-latest"}

// Category is one row of the classification vocabulary
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Config struct {
	Addr     string        `yaml:"addr"`
	DBDriver string        `yaml:"db_driver"`
	DBPath   string        `yaml:"db_path"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	LLMProvider       string        `yaml:"llm_provider"`
	LLMModels         []string      `yaml:"llm_models"`
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	AnthropicAPIKey   string        `yaml:"anthropic_api_key"`
	LLMRetryDelay     time.Duration `yaml:"llm_retry_delay"`
	LLMAttemptTimeout time.Duration `yaml:"llm_attempt_timeout"`
	StrictCategories  bool          `yaml:"strict_categories"`
	Vocabulary        []Category    `yaml:"vocabulary"`

	// save keeps entries with fallback tags, block rejects them
	ClassifyOnFailure string `yaml:"classify_on_failure"`

	// lets API clients submit an entry as a URL the server fetches
	AllowURLFetch bool `yaml:"allow_url_fetch"`

	LogLevel           string `yaml:"log_level"`
	LogDevelopment     bool   `yaml:"log_development"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
}

// Load reads path (or LESSONLOG_CONFIG, or lessonlog.yaml when both are
// empty). A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("LESSONLOG_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envOverride(&c.Addr, "ADDR")
	envOverride(&c.DBDriver, "DB_DRIVER")
	envOverride(&c.DBPath, "DB_PATH")
	envOverride(&c.LLMProvider, "LLM_PROVIDER")
	envOverrideList(&c.LLMModels, "LLM_MODELS")
	envOverride(&c.GeminiAPIKey, "GOOGLE_API_KEY")
	envOverride(&c.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&c.ClassifyOnFailure, "CLASSIFY_ON_FAILURE")
	envOverride(&c.LogLevel, "LOG_LEVEL")

	if err := envOverrideDuration(&c.CacheTTL, "CACHE_TTL"); err != nil {
		return err
	}
	if err := envOverrideDuration(&c.LLMRetryDelay, "LLM_RETRY_DELAY"); err != nil {
		return err
	}
	if err := envOverrideDuration(&c.LLMAttemptTimeout, "LLM_ATTEMPT_TIMEOUT"); err != nil {
		return err
	}
	if err := envOverrideBool(&c.StrictCategories, "STRICT_CATEGORIES"); err != nil {
		return err
	}
	if err := envOverrideBool(&c.AllowURLFetch, "ALLOW_URL_FETCH"); err != nil {
		return err
	}
	return envOverrideInt(&c.HTTPTimeoutSeconds, "HTTP_TIMEOUT_SECONDS")
}

func (c *Config) applyDefaults() {
	def := classifier.DefaultOptions()

	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.DBDriver == "" {
		c.DBDriver = store.DriverSQLite3
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMProvider == "" {
		c.LLMProvider = classifier.ProviderGemini
	}
	if len(c.LLMModels) == 0 {
		if c.LLMProvider == classifier.ProviderAnthropic {
			c.LLMModels = append([]string(nil), defaultAnthropicModels...)
		} else {
			c.LLMModels = def.Models
		}
	}
	if c.LLMRetryDelay == 0 {
		c.LLMRetryDelay = def.RetryDelay
	}
	if c.LLMAttemptTimeout == 0 {
		c.LLMAttemptTimeout = def.AttemptTimeout
	}
	if len(c.Vocabulary) == 0 {
		for _, cat := range def.Vocabulary {
			c.Vocabulary = append(c.Vocabulary, Category{Name: cat.Name, Keywords: cat.Keywords})
		}
	}
	c.ClassifyOnFailure = strings.ToLower(strings.TrimSpace(c.ClassifyOnFailure))
	if c.ClassifyOnFailure == "" {
		c.ClassifyOnFailure = journal.PolicySave
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTPTimeoutSeconds == 0 {
		c.HTTPTimeoutSeconds = defaultHTTPTimeoutSeconds
	}
}

// Validate checks values that would otherwise fail much later
func (c Config) Validate() error {
	switch c.DBDriver {
	case store.DriverSQLite3, store.DriverSQLite, store.DriverCSV:
	default:
		return fmt.Errorf("db_driver must be %s, %s or %s, got %q",
			store.DriverSQLite3, store.DriverSQLite, store.DriverCSV, c.DBDriver)
	}
	switch c.LLMProvider {
	case classifier.ProviderGemini, classifier.ProviderAnthropic:
	default:
		return fmt.Errorf("llm_provider must be %s or %s, got %q",
			classifier.ProviderGemini, classifier.ProviderAnthropic, c.LLMProvider)
	}
	switch c.ClassifyOnFailure {
	case journal.PolicySave, journal.PolicyBlock:
	default:
		return fmt.Errorf("classify_on_failure must be %s or %s, got %q",
			journal.PolicySave, journal.PolicyBlock, c.ClassifyOnFailure)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("invalid cache_ttl %s: must be >= 0", c.CacheTTL)
	}
	if c.LLMRetryDelay < 0 || c.LLMAttemptTimeout < 0 {
		return fmt.Errorf("llm_retry_delay and llm_attempt_timeout must be >= 0")
	}
	if c.HTTPTimeoutSeconds < 1 {
		return fmt.Errorf("invalid http_timeout_seconds %d: must be >= 1", c.HTTPTimeoutSeconds)
	}
	for i, cat := range c.Vocabulary {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("vocabulary entry %d has no name", i)
		}
	}
	return nil
}

// APIKey returns the key for the configured provider
func (c Config) APIKey() string {
	if c.LLMProvider == classifier.ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}

// ClassifierOptions maps the LLM settings onto classifier options
func (c Config) ClassifierOptions() classifier.Options {
	opts := classifier.DefaultOptions()
	opts.Models = append([]string(nil), c.LLMModels...)
	opts.RetryDelay = c.LLMRetryDelay
	opts.AttemptTimeout = c.LLMAttemptTimeout
	opts.StrictCategories = c.StrictCategories
	opts.Vocabulary = make([]classifier.Category, 0, len(c.Vocabulary))
	for _, cat := range c.Vocabulary {
		opts.Vocabulary = append(opts.Vocabulary, classifier.Category{Name: cat.Name, Keywords: cat.Keywords})
	}
	return opts
}

func envOverride(field *string, key string) {
	if val := os.Getenv(key); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	*field = nil
	for _, v := range strings.Split(val, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*field = append(*field, v)
		}
	}
}

func envOverrideInt(field *int, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*field = n
	return nil
}

func envOverrideBool(field *bool, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*field = b
	return nil
}

// envOverrideDuration accepts Go durations ("1500ms") or whole seconds ("2")
func envOverrideDuration(field *time.Duration, key string) error {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return nil
	}
	if n, err := strconv.Atoi(val); err == nil {
		*field = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*field = d
	return nil
}
