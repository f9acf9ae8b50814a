package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=2\n"

func TestFetchOne_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	res, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "team", Path: path})
	require.NoError(t, err)
	assert.Equal(t, feed, string(res.Body))
	assert.False(t, res.FromCache)
}

func TestFetchOne_HTTPCaching(t *testing.T) {
	var hits, fail atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() == 1 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/cal.ics?token=secret"}
	ctx := context.Background()

	res, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, feed, string(res.Body))
	assert.False(t, res.FromCache)

	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, feed, string(res.Body))
	assert.True(t, res.FromCache, "304 should be served from cache")

	fail.Store(1)
	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache, "error status should fall back to cache")
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchAll_CollectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "ok.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	results, errs := NewFetcher(t.TempDir()).FetchAll(context.Background(), []Source{
		{ID: "ok", Path: path},
		{ID: "missing", URL: srv.URL + "/missing.ics"},
		{ID: "empty"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Source.ID)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)",
		redactURL("https://calendar.example.com/private/abc.ics?token=1"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
	assert.Equal(t, "", redactURL(""))
}
