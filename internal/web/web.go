package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"icalsched/internal/config"
	"icalsched/internal/ics"
	appLog "icalsched/internal/log"
	"icalsched/internal/schedule"
)

const (
	maxParseBody      = 1 << 20
	defaultParseCount = 10
	maxParseCount     = 1000
	occurrencesTTL    = 30 * time.Second
)

// Server provides the HTTP API: ad-hoc parsing of calendar text and
// expanded occurrences of the configured sources.
type Server struct {
	cfg     *config.Config
	loc     *time.Location
	fetcher *ics.Fetcher
	mux     *http.ServeMux

	// In-memory cache for /api/occurrences responses to avoid redundant
	// fetch/parse/expand work on every HTTP request.
	occMu    sync.RWMutex
	occCache *occurrencesCache
}

type occurrencesCache struct {
	key       string
	resp      occurrencesResponse
	updatedAt time.Time
}

// NewServer constructs a new Server. Floating times and output use the
// configured timezone, or time.Local when it cannot be loaded.
func NewServer(cfg *config.Config) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		loc = time.Local
	}
	s := &Server{
		cfg:     cfg,
		loc:     loc,
		fetcher: ics.NewFetcher(cfg.CacheDir),
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Invalidate drops the cached occurrences so the next request refetches.
func (s *Server) Invalidate() {
	s.occMu.Lock()
	s.occCache = nil
	s.occMu.Unlock()
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icalsched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/parse", s.handleParse)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/occurrences", s.handleOccurrences)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// parseResponse is the JSON response shape for /api/parse.
type parseResponse struct {
	Schedule    descriptorDTO `json:"schedule"`
	Occurrences []time.Time   `json:"occurrences"`
}

// handleParse parses a calendar blob from the request body.
//
// POST /api/parse?count=10
//   - body:  calendar text (DTSTART:..., RRULE:..., ...)
//   - count: number of leading occurrences to list (default 10)
//
// Parse and rule errors are reported as 422 with the offending line.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.readSchedule(w, r)
	if !ok {
		return
	}

	count := parseIntDefault(r.URL.Query().Get("count"), defaultParseCount)
	if count < 0 {
		count = 0
	}
	if count > maxParseCount {
		count = maxParseCount
	}

	occ := sched.First(count)
	for i := range occ {
		occ[i] = occ[i].In(s.loc)
	}
	writeJSON(w, http.StatusOK, parseResponse{
		Schedule:    newDescriptorDTO(sched.Descriptor()),
		Occurrences: occ,
	})
}

// handleExport converts a calendar blob into a standalone VCALENDAR.
//
// POST /api/export?summary=Standup
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.readSchedule(w, r)
	if !ok {
		return
	}
	out, err := ics.ExportCalendar(sched.Descriptor(), r.URL.Query().Get("summary"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// readSchedule parses and compiles the request body, writing the error
// response itself when that fails.
func (s *Server) readSchedule(w http.ResponseWriter, r *http.Request) (*schedule.Schedule, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxParseBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	if len(body) > maxParseBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return nil, false
	}

	sched, err := ics.Parser{Location: s.loc}.Schedule(string(body))
	if err != nil {
		appLog.Debug("api parse rejected", "err", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	return sched, true
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences      []occurrenceDTO `json:"occurrences"`
	TruncatedSources []string        `json:"truncated_sources,omitempty"`
	FailedSources    []string        `json:"failed_sources,omitempty"`
	RangeStart       time.Time       `json:"range_start"`
	RangeEnd         time.Time       `json:"range_end"`
	DisplayTimeZone  string          `json:"display_timezone"`
}

// handleOccurrences returns expanded occurrences for the configured
// sources within a requested time window.
//
// GET /api/occurrences?days=7&backfill=1
//   - days:     how many days ahead to include (default horizon_days)
//   - backfill: how many past days to include (default 1)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	key := strconv.Itoa(days) + "/" + strconv.Itoa(backfill)
	s.occMu.RLock()
	oc := s.occCache
	s.occMu.RUnlock()
	if oc != nil && oc.key == key && time.Since(oc.updatedAt) < occurrencesTTL {
		writeJSON(w, http.StatusOK, oc.resp)
		return
	}

	now := time.Now().In(s.loc)
	resp := s.collectOccurrences(r.Context(), now.AddDate(0, 0, -backfill), now.AddDate(0, 0, days))

	s.occMu.Lock()
	s.occCache = &occurrencesCache{key: key, resp: resp, updatedAt: time.Now()}
	s.occMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// collectOccurrences fetches, parses and expands every configured source.
// A failing source is logged and listed in FailedSources; the others are
// still returned.
func (s *Server) collectOccurrences(ctx context.Context, rangeStart, rangeEnd time.Time) occurrencesResponse {
	resp := occurrencesResponse{
		Occurrences:     []occurrenceDTO{},
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: s.loc.String(),
	}

	sources := make([]ics.Source, 0, len(s.cfg.Sources))
	for _, cs := range s.cfg.Sources {
		sources = append(sources, ics.Source{ID: cs.ID, URL: cs.URL, Path: cs.Path})
	}

	results, fetchErrs := s.fetcher.FetchAll(ctx, sources)
	if len(fetchErrs) > 0 {
		appLog.Error("api occurrences: one or more fetches failed", errors.Join(fetchErrs...), "error_count", len(fetchErrs))
	}
	fetched := make(map[string]bool, len(results))
	for _, res := range results {
		fetched[res.Source.ID] = true
	}
	for _, src := range sources {
		if !fetched[src.ID] {
			resp.FailedSources = append(resp.FailedSources, src.ID)
		}
	}

	cfg := schedule.ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		MaxOccurrences:  s.cfg.MaxOccurrences,
	}
	for _, res := range results {
		sched, err := ics.Parser{Location: s.loc}.Schedule(string(res.Body))
		if err != nil {
			appLog.Error("api occurrences: parse failed for source", err, "id", res.Source.ID)
			resp.FailedSources = append(resp.FailedSources, res.Source.ID)
			continue
		}
		expanded, err := schedule.Expand(res.Source.ID, sched, cfg)
		if err != nil {
			appLog.Error("api occurrences: expand failed", err, "id", res.Source.ID)
			resp.FailedSources = append(resp.FailedSources, res.Source.ID)
			continue
		}
		if expanded.Truncated {
			resp.TruncatedSources = append(resp.TruncatedSources, res.Source.ID)
		}
		for _, occ := range expanded.Occurrences {
			resp.Occurrences = append(resp.Occurrences, occurrenceDTO{
				SourceID:    occ.SourceID,
				InstanceKey: occ.InstanceKey,
				Start:       occ.Start,
				End:         occ.End,
			})
		}
	}

	appLog.Info("api occurrences",
		"sources", len(sources),
		"occurrences", len(resp.Occurrences),
		"range_start", rangeStart,
		"range_end", rangeEnd,
	)
	return resp
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
