// pawhub ingest-service
//
// Keeps the community catalogue fresh from outside sources:
//   - scrape:    classifieds sites → listings (every 6h by default)
//   - affiliate: affiliate network feeds → products (every 24h by default)
//   - article:   triggers the external article generator (optional)
//
// The run_log table decides what is due. Runs are started by the external
// cron hitting /cron/run, by the optional in-process timer (CRON_SPEC), by an
// admin through /admin/jobs/{type}/run, or from this binary's subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pawhub/ingest-service/internal/api"
	"pawhub/ingest-service/internal/config"
	"pawhub/ingest-service/internal/scheduler"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:           "ingest-service",
	Short:         "Pet community content ingestion",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger and admin API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, runDueCmd, runCmd, seedSourcesCmd, migrateCmd, runsCmd, sourcesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[ingest-service] %v", err)
	}
}

func runServer() error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL / Redis ──────────────────────────────────────────────────
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.ApplySchema(ctx); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if cfg.SourcesFile != "" {
		n, err := a.seedSources(ctx, cfg.SourcesFile)
		if err != nil {
			return err
		}
		log.Printf("[ingest-service] Seeded %d source(s) from %s", n, cfg.SourcesFile)
	}

	tasks := a.tasks(nil)

	// ── In-process timer ────────────────────────────────────────────────────
	if cfg.CronSpec != "" {
		c := scheduler.NewCron(a.sched, cfg.CronSpec, tasks)
		if err := c.Start(ctx); err != nil {
			return err
		}
		defer c.Stop()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Scheduler:  a.sched,
		Tasks:      tasks,
		Runs:       a.store,
		Authorizer: a.authorizer(),
		CronSecret: cfg.CronSecret,
		Health:     a.store,
		Version:    version,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// A trigger runs every due task back to back, each within RunBudget.
		WriteTimeout: time.Duration(len(tasks)+1) * cfg.RunBudget,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[ingest-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	log.Println("[ingest-service] Shutting down…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ingest-service] Shutdown error: %v", err)
	}
	log.Println("[ingest-service] Stopped.")
	return nil
}
