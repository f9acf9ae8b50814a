package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"icalsched/internal/config"
	"icalsched/internal/ics"
	appLog "icalsched/internal/log"
	"icalsched/internal/schedule"
	"icalsched/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	src        string
	count      int
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		appLog.Error("invalid flags", err)
		os.Exit(2)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fetcher := ics.NewFetcher(conf.CacheDir)

	switch {
	case flags.src != "":
		if err := inspect(ctx, os.Stdout, fetcher, flags.src, loc, flags.count); err != nil {
			appLog.Error("inspect failed", err, "src", flags.src)
			os.Exit(1)
		}
		return
	case flags.once:
		if err := refresh(ctx, conf, fetcher, loc); err != nil {
			os.Exit(1)
		}
		return
	}

	appLog.Info("icalsched starting",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.Refresh,
		"horizon_days", conf.HorizonDays,
		"sources", len(conf.Sources),
	)

	srv := web.NewServer(conf)

	c := cron.New()
	if _, err := c.AddFunc(conf.Refresh, func() {
		srv.Invalidate()
		_ = refresh(ctx, conf, fetcher, loc)
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.Refresh)
		os.Exit(1)
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("http server failed", err)
		cancel()
	}
	appLog.Info("icalsched exiting")
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("icalsched", flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", "/etc/icalsched/config.yaml", "Path to config file")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.BoolVar(&cfg.once, "once", false, "Fetch and expand all configured sources once and exit")
	fs.StringVar(&cfg.src, "src", "", "Parse a single file or URL, print its schedule and exit")
	fs.IntVar(&cfg.count, "count", 10, "Number of occurrences to print with -src")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.count < 0 {
		return cfg, fmt.Errorf("-count must not be negative, got %d", cfg.count)
	}
	return cfg, nil
}

// inspect loads one schedule, prints its normalized form followed by its
// first count occurrences.
func inspect(ctx context.Context, w io.Writer, fetcher *ics.Fetcher, src string, loc *time.Location, count int) error {
	source := ics.Source{ID: src, Path: src}
	if strings.Contains(src, "://") {
		source = ics.Source{ID: src, URL: src}
	}
	res, err := fetcher.FetchOne(ctx, source)
	if err != nil {
		return err
	}

	sched, err := ics.Parser{Location: loc}.Schedule(string(res.Body))
	if err != nil {
		return err
	}
	normalized, err := ics.Export(sched.Descriptor())
	if err != nil {
		return err
	}

	fmt.Fprint(w, normalized)
	for _, t := range sched.First(count) {
		fmt.Fprintln(w, t.In(loc).Format(time.RFC3339))
	}
	return nil
}

// refresh fetches, parses and expands every configured source over the
// configured horizon and logs a summary per source.
func refresh(ctx context.Context, conf *config.Config, fetcher *ics.Fetcher, loc *time.Location) error {
	sources := make([]ics.Source, 0, len(conf.Sources))
	for _, cs := range conf.Sources {
		sources = append(sources, ics.Source{ID: cs.ID, URL: cs.URL, Path: cs.Path})
	}

	results, errs := fetcher.FetchAll(ctx, sources)

	now := time.Now().In(loc)
	cfg := schedule.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      now,
		RangeEnd:        now.AddDate(0, 0, conf.HorizonDays),
		MaxOccurrences:  conf.MaxOccurrences,
	}

	total := 0
	for _, res := range results {
		sched, err := ics.Parser{Location: loc}.Schedule(string(res.Body))
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", res.Source.ID, err))
			appLog.Error("parse failed", err, "id", res.Source.ID)
			continue
		}
		expanded, err := schedule.Expand(res.Source.ID, sched, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", res.Source.ID, err))
			appLog.Error("expand failed", err, "id", res.Source.ID)
			continue
		}
		total += len(expanded.Occurrences)

		attrs := []any{"id", res.Source.ID, "occurrences", len(expanded.Occurrences), "cached", res.FromCache}
		if next, ok := sched.Next(now); ok {
			attrs = append(attrs, "next", next.In(loc))
		}
		appLog.Info("source refreshed", attrs...)
	}

	appLog.Info("refresh complete", "sources", len(sources), "failed", len(errs), "occurrences", total)
	return errors.Join(errs...)
}
