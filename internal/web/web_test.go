package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalsched/internal/config"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(cfg)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestParseEndpoint(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	body := strings.Join([]string{
		"DTSTART:20240101T090000Z",
		"DTEND:20240101T100000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=2TU,FR;COUNT=5;WKST=SU",
		"EXDATE:20240105T090000Z",
	}, "\n")
	rec := do(t, h, http.MethodPost, "/api/parse?count=3", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Schedule struct {
			StartTime *time.Time  `json:"start_time"`
			ExTimes   []time.Time `json:"extimes"`
			RRules    []struct {
				Frequency   string `json:"frequency"`
				Interval    int    `json:"interval"`
				Count       *int   `json:"count"`
				WeekStart   string `json:"week_start"`
				RRule       string `json:"rrule"`
				Validations struct {
					DayOfWeek map[string][]int `json:"day_of_week"`
					Day       []string         `json:"day"`
				} `json:"validations"`
			} `json:"rrules"`
		} `json:"schedule"`
		Occurrences []time.Time `json:"occurrences"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotNil(t, resp.Schedule.StartTime)
	assert.True(t, resp.Schedule.StartTime.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.Len(t, resp.Schedule.ExTimes, 1)

	require.Len(t, resp.Schedule.RRules, 1)
	r := resp.Schedule.RRules[0]
	assert.Equal(t, "WEEKLY", r.Frequency)
	assert.Equal(t, 1, r.Interval)
	require.NotNil(t, r.Count)
	assert.Equal(t, 5, *r.Count)
	assert.Equal(t, "SU", r.WeekStart)
	assert.NotEmpty(t, r.RRule)
	assert.Equal(t, map[string][]int{"TU": {2}}, r.Validations.DayOfWeek)
	assert.Equal(t, []string{"FR"}, r.Validations.Day)

	assert.Len(t, resp.Occurrences, 3)
}

func TestParseEndpoint_Errors(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/parse", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/parse", "DTSTART:20240101T090000Z\nRRULE:\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "line 2")

	rec = do(t, h, http.MethodPost, "/api/parse", "RRULE:FREQNOVALUE")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/parse", "DTSTART:20240101T090000Z\nRRULE:FREQ=SOMETIMES\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "SOMETIMES")
}

func TestExportEndpoint(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/export?summary=Standup",
		"DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=2\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	out := rec.Body.String()
	assert.Contains(t, out, "BEGIN:VEVENT")
	assert.Contains(t, out, "SUMMARY:Standup")
	assert.Contains(t, out, "FREQ=DAILY")
}

func TestOccurrencesEndpoint(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "daily.ics")
	start := time.Now().UTC().Add(-48 * time.Hour).Format("20060102T150405Z")
	require.NoError(t, os.WriteFile(good, []byte("DTSTART:"+start+"\nRRULE:FREQ=DAILY\n"), 0o600))
	broken := filepath.Join(dir, "broken.ics")
	require.NoError(t, os.WriteFile(broken, []byte("RRULE:\n"), 0o600))

	s := newTestServer(t, func(c *config.Config) {
		c.Sources = []config.SourceConfig{
			{ID: "daily", Path: good},
			{ID: "broken", Path: broken},
			{ID: "missing", Path: filepath.Join(dir, "nope.ics")},
		}
	})

	rec := do(t, s.Handler(), http.MethodGet, "/api/occurrences?days=3&backfill=0", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp occurrencesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UTC", resp.DisplayTimeZone)
	assert.ElementsMatch(t, []string{"broken", "missing"}, resp.FailedSources)
	require.NotEmpty(t, resp.Occurrences)
	for _, occ := range resp.Occurrences {
		assert.Equal(t, "daily", occ.SourceID)
	}

	// Served from cache until invalidated.
	require.NoError(t, os.Remove(good))
	rec = do(t, s.Handler(), http.MethodGet, "/api/occurrences?days=3&backfill=0", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Occurrences)

	s.Invalidate()
	rec = do(t, s.Handler(), http.MethodGet, "/api/occurrences?days=3&backfill=0", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Occurrences)
}

func TestBasicAuth(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/parse", "DTSTART:20240101T090000Z")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader("DTSTART:20240101T090000Z"))
	req.SetBasicAuth("admin", "secret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}
