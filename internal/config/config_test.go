package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/lessonlog/internal/classifier"
	"github.com/pbaille/lessonlog/internal/journal"
	"github.com/pbaille/lessonlog/internal/store"
)

var envKeys = []string{
	"LESSONLOG_CONFIG", "ADDR", "DB_DRIVER", "DB_PATH", "CACHE_TTL", "LLM_PROVIDER",
	"LLM_MODELS", "GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY",
	"LLM_RETRY_DELAY", "LLM_ATTEMPT_TIMEOUT", "STRICT_CATEGORIES",
	"CLASSIFY_ON_FAILURE", "LOG_LEVEL", "HTTP_TIMEOUT_SECONDS", "ALLOW_URL_FETCH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lessonlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LESSONLOG_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load("")
	require.Error(t, err, "an explicitly named config file must exist")

	t.Setenv("LESSONLOG_CONFIG", writeFile(t, ""))
	cfg, err := Load("")
	require.NoError(t, err)

	def := classifier.DefaultOptions()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, store.DriverSQLite3, cfg.DBDriver)
	assert.Equal(t, "./data/lessons.db", cfg.DBPath)
	assert.Equal(t, classifier.ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, def.Models, cfg.LLMModels)
	assert.Equal(t, time.Second, cfg.LLMRetryDelay)
	assert.Equal(t, journal.PolicySave, cfg.ClassifyOnFailure)
	assert.Equal(t, 60, cfg.HTTPTimeoutSeconds)
	require.Len(t, cfg.Vocabulary, len(def.Vocabulary))
	assert.Equal(t, "기획", cfg.Vocabulary[0].Name)
	assert.Zero(t, cfg.CacheTTL)
	assert.False(t, cfg.AllowURLFetch)
}

func TestYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
addr: ":9000"
db_driver: csv
db_path: /tmp/lessons.csv
cache_ttl: 30s
llm_provider: anthropic
anthropic_api_key: from-file
strict_categories: true
classify_on_failure: block
vocabulary:
  - name: 개발
    keywords: [트러블슈팅]
  - name: 기타
`)
	t.Setenv("ADDR", ":7000")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("LLM_RETRY_DELAY", "2")
	t.Setenv("LLM_ATTEMPT_TIMEOUT", "1500ms")
	t.Setenv("ALLOW_URL_FETCH", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, store.DriverCSV, cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "from-env", cfg.APIKey())
	assert.Equal(t, defaultAnthropicModels, cfg.LLMModels)
	assert.Equal(t, 2*time.Second, cfg.LLMRetryDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLMAttemptTimeout)
	assert.Equal(t, journal.PolicyBlock, cfg.ClassifyOnFailure)
	assert.True(t, cfg.AllowURLFetch)

	opts := cfg.ClassifierOptions()
	assert.True(t, opts.StrictCategories)
	assert.Equal(t, []classifier.Category{
		{Name: "개발", Keywords: []string{"트러블슈팅"}},
		{Name: "기타"},
	}, opts.Vocabulary)
	assert.Equal(t, "AI연동실패", opts.UnavailableKeyword)
}

func TestGeminiKeyPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "")
	t.Setenv("GOOGLE_API_KEY", "google")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "google", cfg.APIKey())

	t.Setenv("GEMINI_API_KEY", "gemini")
	t.Setenv("LLM_MODELS", "gemini-2.5-flash, ,gemini-2.0-flash")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.APIKey())
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.0-flash"}, cfg.LLMModels)
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]struct {
		yaml string
		env  map[string]string
	}{
		"driver":    {yaml: "db_driver: postgres"},
		"provider":  {yaml: "llm_provider: openai"},
		"policy":    {env: map[string]string{"CLASSIFY_ON_FAILURE": "retry"}},
		"ttl":       {env: map[string]string{"CACHE_TTL": "soon"}},
		"timeout":   {env: map[string]string{"HTTP_TIMEOUT_SECONDS": "-1"}},
		"strict":    {env: map[string]string{"STRICT_CATEGORIES": "maybe"}},
		"vocab":     {yaml: "vocabulary:\n  - keywords: [x]"},
		"malformed": {yaml: "addr: [unterminated"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}
