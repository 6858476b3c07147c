package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pbaille/lessonlog/internal/classifier"
	"github.com/pbaille/lessonlog/internal/journal"
	"github.com/pbaille/lessonlog/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClassifier struct {
	result classifier.Result
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (classifier.Result, error) {
	return f.result, f.err
}

type failingTable struct{}

func (failingTable) Read(ctx context.Context) ([]store.Row, error) {
	return nil, errors.New("sheet unavailable")
}

func (failingTable) Write(ctx context.Context, rows []store.Row) error {
	return errors.New("sheet unavailable")
}

func newTestServer(t *testing.T, clf *fakeClassifier, policy string) *Server {
	t.Helper()
	table := store.NewCSV(filepath.Join(t.TempDir(), "lessons.csv"))
	n := 0
	svc := journal.New(table, clf, journal.Options{
		Policy: policy,
		NewID: func() string {
			n++
			return fmt.Sprintf("entry-%d", n)
		},
	}, nil)
	return New(svc, Options{Vocabulary: classifier.DefaultVocabulary()}, nil)
}

func devClassifier() *fakeClassifier {
	return &fakeClassifier{result: classifier.Result{
		Keywords:   []string{"caching", "API"},
		Categories: []string{"개발"},
		Model:      "gemini-2.5-flash",
	}}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestServer(t, devClassifier(), "").Handler()

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = do(t, h, http.MethodOptions, "/entries", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestEntryLifecycle(t *testing.T) {
	clf := devClassifier()
	h := newTestServer(t, clf, "").Handler()

	rec := do(t, h, http.MethodPost, "/entries", map[string]string{
		"date":   "2024-06-03",
		"writer": "Alice",
		"text":   "Fixed a slow API by adding a cache",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "entry-1", created.Entry.ID)
	assert.Equal(t, "2024-06-03", created.Entry.Date.String())
	assert.Equal(t, []string{"caching", "API"}, created.Entry.Keywords)
	assert.Equal(t, "gemini-2.5-flash", created.Model)
	assert.False(t, created.Degraded)

	rec = do(t, h, http.MethodGet, "/entries/entry-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", decode(t, rec)["writer"])

	clf.result = classifier.Result{Keywords: []string{"figma"}, Categories: []string{"디자인"}, Model: "gemini-2.0-flash"}
	rec = do(t, h, http.MethodPut, "/entries/entry-1", map[string]string{"writer": "Alice", "text": "Reworked the design system"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "entry-1", updated.Entry.ID)
	assert.Equal(t, []string{"디자인"}, updated.Entry.Categories)

	rec = do(t, h, http.MethodGet, "/entries", nil)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])

	rec = do(t, h, http.MethodDelete, "/entries/entry-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/entries/entry-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "not found")
}

func TestCreateValidationAndPolicy(t *testing.T) {
	h := newTestServer(t, devClassifier(), "").Handler()

	rec := do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "text": "x", "date": "June third"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := &fakeClassifier{
		result: classifier.Result{Keywords: []string{"AI연동실패"}, Categories: []string{"기타"}},
		err:    fmt.Errorf("%w: quota", classifier.ErrUnavailable),
	}

	saving := newTestServer(t, failing, journal.PolicySave).Handler()
	rec = do(t, saving, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "text": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Error, "quota")
	assert.Equal(t, []string{"AI연동실패"}, resp.Entry.Keywords)

	blocking := newTestServer(t, failing, journal.PolicyBlock).Handler()
	rec = do(t, blocking, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "text": "x"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	rec = do(t, blocking, http.MethodGet, "/entries", nil)
	assert.EqualValues(t, 0, decode(t, rec)["total"])
}

func TestAmbiguousPrefix(t *testing.T) {
	h := newTestServer(t, devClassifier(), "").Handler()
	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "text": "t"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/entries/entry-", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWritesNeedTheFullID(t *testing.T) {
	h := newTestServer(t, devClassifier(), "").Handler()
	rec := do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "text": "t"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// a unique prefix reads the entry but cannot change it
	rec = do(t, h, http.MethodGet, "/entries/entry", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/entries/entry", map[string]string{"writer": "Bob", "text": "overwritten"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/entries/entry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/entries/entry-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", decode(t, rec)["writer"])

	rec = do(t, h, http.MethodDelete, "/entries/entry-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListFiltersAndStats(t *testing.T) {
	clf := devClassifier()
	h := newTestServer(t, clf, "").Handler()

	add := func(date, writer string, cats ...string) {
		clf.result = classifier.Result{Keywords: []string{"k"}, Categories: cats, Model: "m"}
		rec := do(t, h, http.MethodPost, "/entries", map[string]string{"date": date, "writer": writer, "text": "t"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	add("2024-05-01", "Alice", "개발")
	add("2024-06-01", "Bob", "개발", "디자인")
	add("2024-06-02", "Alice", "기타")

	rec := do(t, h, http.MethodGet, "/entries?category=디자인,기타", nil)
	assert.EqualValues(t, 2, decode(t, rec)["total"])

	rec = do(t, h, http.MethodGet, "/entries?writer=alice&from=2024-06-01", nil)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, h, http.MethodGet, "/entries?limit=1&offset=1", nil)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["entries"], 1)

	rec = do(t, h, http.MethodGet, "/entries?to=someday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Summary struct {
			Total      int `json:"total"`
			Categories []struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			} `json:"categories"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Summary.Total)
	require.Len(t, stats.Summary.Categories, 3)
	assert.Equal(t, "개발", stats.Summary.Categories[0].Name)
	assert.Equal(t, 2, stats.Summary.Categories[0].Value)

	rec = do(t, h, http.MethodGet, "/stats/treemap", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["nodes"], 6)
}

func TestReadFailureIsAWarning(t *testing.T) {
	svc := journal.New(failingTable{}, devClassifier(), journal.Options{}, nil)
	h := New(svc, Options{}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["warning"], "sheet unavailable")
	assert.Empty(t, body["entries"])

	rec = do(t, h, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["warning"], "sheet unavailable")

	rec = do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "a", "text": "b"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClassifyPreviewAndVocabulary(t *testing.T) {
	h := newTestServer(t, devClassifier(), "").Handler()

	rec := do(t, h, http.MethodPost, "/classify", map[string]string{"text": "cache"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "gemini-2.5-flash", body["model"])
	assert.Equal(t, false, body["degraded"])

	rec = do(t, h, http.MethodPost, "/classify", map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/vocabulary", nil)
	assert.Len(t, decode(t, rec)["categories"], 6)

	// nothing was stored by the preview
	rec = do(t, h, http.MethodGet, "/entries", nil)
	assert.EqualValues(t, 0, decode(t, rec)["total"])
}

func TestCreateFromURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>Retro notes: ship smaller PRs</p></body></html>")
	}))
	defer page.Close()

	table := store.NewCSV(filepath.Join(t.TempDir(), "lessons.csv"))
	svc := journal.New(table, devClassifier(), journal.Options{}, nil)
	h := New(svc, Options{AllowURLFetch: true, HTTPClient: page.Client()}, nil).Handler()

	rec := do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "url": page.URL})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Entry.Text, "ship smaller PRs")

	rec = do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, devClassifier(), "")
	srv.opts.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestURLEntriesDisabledByDefault(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("page must not be fetched")
	}))
	defer page.Close()

	h := newTestServer(t, devClassifier(), "").Handler()
	rec := do(t, h, http.MethodPost, "/entries", map[string]string{"writer": "Alice", "url": page.URL})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "disabled")
}

func TestURLEntriesRefuseLoopback(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("page must not be fetched")
	}))
	defer page.Close()

	table := store.NewCSV(filepath.Join(t.TempDir(), "lessons.csv"))
	svc := journal.New(table, devClassifier(), journal.Options{}, nil)
	srv := New(svc, Options{AllowURLFetch: true}, nil)
	defer srv.opts.HTTPClient.CloseIdleConnections()

	rec := do(t, srv.Handler(), http.MethodPost, "/entries", map[string]string{"writer": "Alice", "url": page.URL})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "address not allowed")

	rec = do(t, srv.Handler(), http.MethodGet, "/entries", nil)
	assert.EqualValues(t, 0, decode(t, rec)["total"])
}
