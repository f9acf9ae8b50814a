package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalsched/internal/config"
	"icalsched/internal/ics"
)

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weekly.ics")
	require.NoError(t, os.WriteFile(path, []byte(
		"DTSTART:20240101T090000Z\r\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4\r\n"), 0o600))

	var out bytes.Buffer
	err := inspect(context.Background(), &out, ics.NewFetcher(dir), path, time.UTC, 3)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "DTSTART:20240101T090000Z", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "RRULE:"))
	assert.Equal(t, []string{
		"2024-01-01T09:00:00Z",
		"2024-01-03T09:00:00Z",
		"2024-01-08T09:00:00Z",
	}, lines[2:])
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"-src", "team.ics", "-count", "3", "-listen", ":9090"})
	require.NoError(t, err)
	assert.Equal(t, "team.ics", cfg.src)
	assert.Equal(t, 3, cfg.count)
	assert.Equal(t, ":9090", cfg.listen)
	assert.Equal(t, "/etc/icalsched/config.yaml", cfg.configPath)

	cfg, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.count)

	_, err = parseFlags([]string{"-count=-1"})
	assert.ErrorContains(t, err, "-count")

	_, err = parseFlags([]string{"-count=many"})
	assert.Error(t, err)
}

func TestInspect_ZeroCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daily.ics")
	require.NoError(t, os.WriteFile(path, []byte("DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, inspect(context.Background(), &out, ics.NewFetcher(dir), path, time.UTC, 0))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "DTSTART:20240101T090000Z", lines[0])
	assert.Contains(t, lines[1], "FREQ=DAILY")
}

func TestInspect_Errors(t *testing.T) {
	dir := t.TempDir()
	fetcher := ics.NewFetcher(dir)

	err := inspect(context.Background(), &bytes.Buffer{}, fetcher, filepath.Join(dir, "missing.ics"), time.UTC, 1)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.ics")
	require.NoError(t, os.WriteFile(bad, []byte("DTSTART:yesterday\n"), 0o600))
	err = inspect(context.Background(), &bytes.Buffer{}, fetcher, bad, time.UTC, 1)
	var perr *ics.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

func TestRefresh(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "daily.ics")
	require.NoError(t, os.WriteFile(good, []byte("DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY\n"), 0o600))

	conf := config.DefaultConfig()
	conf.CacheDir = dir
	conf.Sources = []config.SourceConfig{{ID: "daily", Path: good}}
	fetcher := ics.NewFetcher(dir)

	require.NoError(t, refresh(context.Background(), conf, fetcher, time.UTC))

	conf.Sources = append(conf.Sources, config.SourceConfig{ID: "gone", Path: filepath.Join(dir, "gone.ics")})
	err := refresh(context.Background(), conf, fetcher, time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
}
