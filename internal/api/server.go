package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/lessonlog/internal/classifier"
	"github.com/pbaille/lessonlog/internal/dashboard"
	"github.com/pbaille/lessonlog/internal/domain"
	"github.com/pbaille/lessonlog/internal/extract"
	"github.com/pbaille/lessonlog/internal/httpx"
	"github.com/pbaille/lessonlog/internal/journal"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server
type Options struct {
	Addr       string
	Vocabulary []classifier.Category
	// AllowURLFetch enables entries submitted as {"url": ...}; off by default
	AllowURLFetch bool
	// HTTPClient fetches those pages
	HTTPClient *http.Client
}

// Server handles HTTP requests for the lesson log API
type Server struct {
	svc    *journal.Service
	opts   Options
	logger *zap.Logger
}

// New creates a new API server
func New(svc *journal.Service, opts Options, logger *zap.Logger) *Server {
	if opts.HTTPClient == nil {
		opts.HTTPClient = httpx.PublicOnlyClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, opts: opts, logger: logger}
}

// Handler returns the routed handler with CORS and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Entries
	mux.HandleFunc("GET /entries", s.listEntries)
	mux.HandleFunc("POST /entries", s.addEntry)
	mux.HandleFunc("GET /entries/{id}", s.getEntry)
	mux.HandleFunc("PUT /entries/{id}", s.updateEntry)
	mux.HandleFunc("DELETE /entries/{id}", s.deleteEntry)

	mux.HandleFunc("POST /classify", s.classify)

	// Dashboard
	mux.HandleFunc("GET /stats", s.stats)
	mux.HandleFunc("GET /stats/treemap", s.treemap)
	mux.HandleFunc("GET /vocabulary", s.vocabulary)

	mux.HandleFunc("GET /health", s.health)

	return s.withLogging(withCORS(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("server starting", zap.String("addr", s.opts.Addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EntryRequest is the body of POST and PUT /entries. When URL is set and
// Text is empty the page text is fetched and used instead.
type EntryRequest struct {
	Date   domain.Date `json:"date"`
	Writer string      `json:"writer"`
	Text   string      `json:"text"`
	URL    string      `json:"url,omitempty"`
}

// EntryResponse reports the saved entry and how classification went
type EntryResponse struct {
	Entry    domain.Entry `json:"entry"`
	Model    string       `json:"model,omitempty"`
	Degraded bool         `json:"degraded"`
	Error    string       `json:"error,omitempty"`
}

func (s *Server) draft(r *http.Request) (domain.Draft, int, error) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.Draft{}, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Text) == "" && req.URL != "" {
		if !s.opts.AllowURLFetch {
			return domain.Draft{}, http.StatusBadRequest, errors.New("submitting entries by url is disabled")
		}
		if !extract.IsURL(req.URL) {
			return domain.Draft{}, http.StatusBadRequest, fmt.Errorf("invalid url %q", req.URL)
		}
		text, err := extract.Fetch(r.Context(), s.opts.HTTPClient, req.URL)
		if errors.Is(err, httpx.ErrBlockedAddress) {
			return domain.Draft{}, http.StatusBadRequest, err
		}
		if err != nil {
			return domain.Draft{}, http.StatusBadGateway, err
		}
		req.Text = text
	}
	return domain.Draft{Date: req.Date, Writer: req.Writer, Text: req.Text}, 0, nil
}

func entryResponse(e domain.Entry, o journal.Outcome) EntryResponse {
	resp := EntryResponse{Entry: e, Model: o.Model, Degraded: o.Degraded()}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	d, status, err := s.draft(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	entry, outcome, err := s.svc.Create(r.Context(), d)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse(entry, outcome))
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// updateEntry and deleteEntry take the full id; prefixes are for reading only
func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	d, status, err := s.draft(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	entry, outcome, err := s.svc.Update(r.Context(), r.PathValue("id"), d)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry, outcome))
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := s.svc.List(r.Context(), f)
	resp := map[string]interface{}{"total": len(entries)}
	if err != nil {
		resp["warning"] = err.Error()
	}

	offset = min(offset, len(entries))
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	resp["entries"] = entries
	resp["offset"] = offset
	if limit > 0 {
		resp["limit"] = limit
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClassifyRequest is the body of POST /classify
type ClassifyRequest struct {
	Text string `json:"text"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.svc.Preview(r.Context(), req.Text)
	if errors.Is(err, journal.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := map[string]interface{}{
		"keywords":   result.Keywords,
		"categories": result.Categories,
		"model":      result.Model,
		"degraded":   err != nil,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.svc.List(r.Context(), f)
	resp := map[string]interface{}{"summary": dashboard.Summarize(entries)}
	if err != nil {
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) treemap(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.svc.List(r.Context(), f)
	nodes := dashboard.Treemap(entries)
	if nodes == nil {
		nodes = []dashboard.Node{}
	}
	resp := map[string]interface{}{"nodes": nodes}
	if err != nil {
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) vocabulary(w http.ResponseWriter, r *http.Request) {
	vocab := s.opts.Vocabulary
	if vocab == nil {
		vocab = []classifier.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": vocab})
}

// parseFilter reads category, keyword, writer, from, to and q. category and
// keyword may repeat or hold comma separated values.
func parseFilter(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	f := domain.Filter{
		Categories: splitValues(q["category"]),
		Keywords:   splitValues(q["keyword"]),
		Writer:     q.Get("writer"),
		Query:      q.Get("q"),
	}
	var err error
	if f.From, err = domain.ParseDate(q.Get("from")); err != nil {
		return f, fmt.Errorf("invalid from: %w", err)
	}
	if f.To, err = domain.ParseDate(q.Get("to")); err != nil {
		return f, fmt.Errorf("invalid to: %w", err)
	}
	return f, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, piece := range strings.Split(v, ",") {
			if piece = strings.TrimSpace(piece); piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, journal.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, journal.ErrAmbiguous):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, journal.ErrClassificationFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
