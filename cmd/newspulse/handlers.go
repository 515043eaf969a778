package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/openelectorate/newspulse/internal/config"
	"github.com/openelectorate/newspulse/internal/queue"
	"github.com/openelectorate/newspulse/internal/scheduler"
	"github.com/openelectorate/newspulse/internal/store"
	"github.com/openelectorate/newspulse/pkg/alertscan"
	"github.com/openelectorate/newspulse/pkg/analytics"
	"github.com/openelectorate/newspulse/pkg/ingest"
	"github.com/openelectorate/newspulse/pkg/monitor"
	"github.com/openelectorate/newspulse/pkg/pulse"
	"github.com/openelectorate/newspulse/pkg/sentiment"
	"github.com/openelectorate/newspulse/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildIngestEngine(cfg *config.Config, db store.Store) *ingest.Engine {
	feeds := ingest.NewFeedClient(cfg.Ingest.SearchFeedURL, cfg.Ingest.ParseFetchTimeout())
	client := sentiment.NewClient(cfg.Sentiment.URL, cfg.Sentiment.ParseTimeout())
	scorer := sentiment.NewScorer(client, db, cfg.Monitor.FallbackGeoUnit)
	return ingest.NewEngine(db, feeds, scorer, cfg.Ingest.ParseMaxSweepAge(), cfg.Ingest.ContextTerms)
}

// jobHandler dispatches queue payloads to the ingestion engine. A manual
// trigger unwraps to its target before dispatch.
func jobHandler(engine *ingest.Engine) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		payload := job.Payload
		if manual, ok := payload.(queue.ManualTriggerJob); ok {
			payload = manual.Target
		}

		switch p := payload.(type) {
		case queue.EntityFetchJob:
			_, err := engine.FetchForEntity(ctx, p.EntityType, p.EntityID)
			return err
		case queue.SourceSweepJob:
			_, err := engine.FetchFromSource(ctx, p.SourceName, p.URL)
			return err
		default:
			return fmt.Errorf("unknown job kind %q", payload.Kind())
		}
	}
}

func buildQueues(cfg *config.Config, engine *ingest.Engine) (entityQueue, sweepQueue *queue.Queue) {
	handler := jobHandler(engine)

	entityQueue = queue.New(queue.Options{
		Name:        "entity-fetch",
		Workers:     cfg.Ingest.EntityWorkers,
		MaxAttempts: cfg.Ingest.RetryAttempts,
		BackoffBase: cfg.Ingest.ParseRetryBackoff(),
		RateLimit:   cfg.Ingest.JobsPerMinute,
		RateWindow:  time.Minute,
	}, handler)

	// Source sweeps carry their own concurrency and no shared rate limit.
	sweepQueue = queue.New(queue.Options{
		Name:        "source-sweep",
		Workers:     cfg.Ingest.SweepWorkers,
		MaxAttempts: cfg.Ingest.RetryAttempts,
		BackoffBase: cfg.Ingest.ParseRetryBackoff(),
	}, handler)

	return entityQueue, sweepQueue
}

func sweepSources(cfg *config.Config) []scheduler.SweepSource {
	sources := make([]scheduler.SweepSource, len(cfg.Ingest.SweepSources))
	for i, s := range cfg.Ingest.SweepSources {
		sources[i] = scheduler.SweepSource{Name: s.Name, URL: s.URL}
	}
	return sources
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine := buildIngestEngine(cfg, db)
	entityQueue, sweepQueue := buildQueues(cfg, engine)
	pulseEngine := pulse.NewEngine(db)
	detector := alertscan.NewDetector(db, pulseEngine, cfg.Monitor.FallbackGeoUnit)
	analyzer := analytics.NewAnalyzer(db, nil)
	sources := sweepSources(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	entityQueue.Start(ctx)
	sweepQueue.Start(ctx)
	defer func() {
		entityQueue.Stop()
		sweepQueue.Stop()
		engine.WaitScoring()
	}()

	sched := scheduler.New(db, entityQueue, sweepQueue, detector, sources,
		cfg.Schedule.ParseEntityInterval(),
		cfg.Schedule.ParseSweepInterval(),
		cfg.Schedule.ParseAlertInterval(),
	)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	srv := server.New(db, entityQueue, sweepQueue, pulseEngine, analyzer, sources, port)
	return srv.ListenAndServe()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine := buildIngestEngine(cfg, db)
	entityQueue, sweepQueue := buildQueues(cfg, engine)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	entityQueue.Start(ctx)
	sweepQueue.Start(ctx)
	defer func() {
		entityQueue.Stop()
		sweepQueue.Stop()
		engine.WaitScoring()
	}()

	pulseEngine := pulse.NewEngine(db)
	analyzer := analytics.NewAnalyzer(db, nil)

	srv := server.New(db, entityQueue, sweepQueue, pulseEngine, analyzer, sweepSources(cfg), port)
	return srv.ListenAndServe()
}

func runActivate(candidateArg string, userID int64) error {
	candidateID, err := strconv.ParseInt(candidateArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid candidate id %q", candidateArg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	cascade := monitor.NewCascade(db, cfg.Monitor.GeoTopN)
	result, err := cascade.Activate(context.Background(), candidateID, userID)
	if err != nil {
		return err
	}

	fmt.Printf("activated %d entities:\n", result.ActivatedCount)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tID\tPRIORITY\tREASON")
	for _, e := range result.Entities {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e.EntityType, e.EntityID, e.Priority, e.Reason)
	}
	return w.Flush()
}

func runActivateGeo(geoArg string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	geoID, err := strconv.ParseInt(geoArg, 10, 64)
	if err != nil {
		// Not numeric: resolve by name or code.
		g, ferr := db.FindGeoUnit(ctx, geoArg)
		if ferr != nil {
			return fmt.Errorf("resolve geo unit %q: %w", geoArg, ferr)
		}
		geoID = g.ID
	}

	cascade := monitor.NewCascade(db, cfg.Monitor.GeoTopN)
	result, err := cascade.ActivateGeoScope(ctx, geoID)
	if err != nil {
		return err
	}
	fmt.Printf("activated %d entities for geo unit %d\n", result.ActivatedCount, geoID)
	return nil
}

func runDeactivate(candidateArg string) error {
	candidateID, err := strconv.ParseInt(candidateArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid candidate id %q", candidateArg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	cascade := monitor.NewCascade(db, cfg.Monitor.GeoTopN)
	n, err := cascade.Deactivate(context.Background(), candidateID)
	if err != nil {
		return err
	}
	fmt.Printf("deactivated %d entities\n", n)
	return nil
}

func runIngest(entityType string, entityID int64, allSources bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine := buildIngestEngine(cfg, db)
	defer engine.WaitScoring()
	ctx := context.Background()

	if allSources {
		for _, src := range cfg.Ingest.SweepSources {
			fmt.Fprintf(os.Stderr, "sweeping %s...\n", src.Name)
			stats, err := engine.FetchFromSource(ctx, src.Name, src.URL)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  error: %v\n", err)
				continue
			}
			fmt.Fprintf(os.Stderr, "  fetched %d, new %d, duplicates %d, too old %d, linked %d\n",
				stats.Fetched, stats.Created, stats.Duplicates, stats.TooOld, stats.Linked)
		}
		return nil
	}

	et := store.EntityType(entityType)
	if (et != store.EntityCandidate && et != store.EntityParty && et != store.EntityGeoUnit) || entityID <= 0 {
		return fmt.Errorf("either --sources or both --entity-type and --entity-id are required")
	}

	stats, err := engine.FetchForEntity(ctx, et, entityID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "fetched %d, new %d, duplicates %d\n",
		stats.Fetched, stats.Created, stats.Duplicates)
	return nil
}

func runPulse(candidateArg string, days int, jsonOutput bool) error {
	candidateID, err := strconv.ParseInt(candidateArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid candidate id %q", candidateArg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine := pulse.NewEngine(db)
	p, err := engine.CalculatePulse(context.Background(), candidateID, days)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	fmt.Printf("pulse: %.4f  trend: %s  signals: %d\n", p.PulseScore, p.Trend, p.ArticlesAnalyzed)
	if len(p.TopDrivers) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EFFECTIVE\tSENTIMENT\tWEIGHT\tHEADLINE")
		for _, d := range p.TopDrivers {
			fmt.Fprintf(w, "%.4f\t%s\t%.1f\t%s\n", d.EffectiveScore, d.Sentiment, d.RelevanceWeight, d.Title)
		}
		return w.Flush()
	}
	return nil
}

func runAlerts(userID int64, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	alerts, err := db.ListAlerts(context.Background(), userID, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println("no alerts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tGEO\tCREATED\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.Type, a.GeoUnitID, a.CreatedAt.Format(time.RFC3339), a.Message)
	}
	return w.Flush()
}
