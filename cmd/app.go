package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pawhub/ingest-service/internal/affiliate"
	"pawhub/ingest-service/internal/api"
	"pawhub/ingest-service/internal/article"
	"pawhub/ingest-service/internal/config"
	"pawhub/ingest-service/internal/db"
	"pawhub/ingest-service/internal/events"
	"pawhub/ingest-service/internal/fetch"
	"pawhub/ingest-service/internal/ingest"
	"pawhub/ingest-service/internal/lock"
	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/scheduler"
	"pawhub/ingest-service/internal/scraper"
	"pawhub/ingest-service/internal/store"
)

// app is the wired service shared by the server and the subcommands.
type app struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	rdb   *redis.Client // nil without REDIS_URL
	store *store.Store
	sched *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log.Println("[ingest-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	log.Println("[ingest-service] PostgreSQL connected ✓")

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	opts := []scheduler.Option{scheduler.WithRunBudget(cfg.RunBudget)}
	if rdb != nil {
		log.Println("[ingest-service] Redis connected ✓ (task lock and run events enabled)")
		opts = append(opts,
			scheduler.WithLocker(lock.NewRedis(rdb, cfg.LockTTL)),
			scheduler.WithNotifier(events.NewPublisher(rdb)),
		)
	} else {
		log.Println("[ingest-service] REDIS_URL not set: running without task lock")
	}

	st := store.New(pool)
	return &app{
		cfg:   cfg,
		pool:  pool,
		rdb:   rdb,
		store: st,
		sched: scheduler.New(st, opts...),
	}, nil
}

func (a *app) close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.pool.Close()
}

// tasks builds the schedulable tasks. match, when non-nil, restricts both
// ingestion jobs to the sources it accepts.
func (a *app) tasks(match func(model.Source) bool) []scheduler.Task {
	cfg := a.cfg
	sources := ingest.FilterSources(a.store, match)
	opts := ingest.Options{MaxCandidates: cfg.MaxCandidates, Workers: cfg.SourceWorkers}

	scrape := scraper.NewJob(sources, fetch.New(fetch.Config{
		Timeout:   cfg.ScrapeFetchTimeout,
		UserAgent: cfg.UserAgent,
		Accept:    fetch.AcceptHTML,
	}), a.store.ReconcileListing, opts)

	feeds := affiliate.NewJob(sources, fetch.New(fetch.Config{
		Timeout:   cfg.AffiliateFetchTimeout,
		UserAgent: cfg.UserAgent,
		Accept:    fetch.AcceptJSON,
	}), a.store.ReconcileProduct, opts)

	tasks := []scheduler.Task{
		{Type: model.TaskScrape, Interval: cfg.ScrapeInterval, Run: ingestTask(scrape.Run)},
		{Type: model.TaskAffiliate, Interval: cfg.AffiliateInterval, Run: ingestTask(feeds.Run)},
	}
	if cfg.ArticleEndpoint != "" {
		client := article.NewClient(cfg.ArticleEndpoint, cfg.CronSecret, cfg.ArticleTimeout)
		tasks = append(tasks, scheduler.Task{Type: model.TaskArticle, Interval: cfg.ArticleInterval, Run: client.Job()})
	}
	return tasks
}

// ingestTask adapts an ingestion job to the scheduler. The Result is the
// run log detail, partial or not.
func ingestTask(run func(context.Context) (ingest.Result, error)) scheduler.JobFunc {
	return func(ctx context.Context, _ scheduler.Trigger) (any, error) {
		res, err := run(ctx)
		return res, err
	}
}

func (a *app) authorizer() api.Authorizer {
	if a.cfg.AdminJWTSecret != "" {
		return api.JWTBearer{Secret: []byte(a.cfg.AdminJWTSecret)}
	}
	return api.GatewayHeaders{}
}

// seedSources upserts every source defined in the YAML file at path.
func (a *app) seedSources(ctx context.Context, path string) (int, error) {
	sources, err := config.LoadSources(path)
	if err != nil {
		return 0, err
	}
	for _, src := range sources {
		if err := a.store.UpsertSource(ctx, src); err != nil {
			return 0, fmt.Errorf("seed source %s: %w", src.ID, err)
		}
	}
	return len(sources), nil
}
