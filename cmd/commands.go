package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"pawhub/ingest-service/internal/config"
	"pawhub/ingest-service/internal/ingest"
	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/scheduler"
	"pawhub/ingest-service/internal/store"
)

// withApp loads config, wires the app and runs fn with a context cancelled
// on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// --- run-due ---

var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Run every due task once and exit",
	Long: `Run every due task once and exit.

Equivalent to one call of the /cron/run endpoint; suited to a system cron
or a Kubernetes CronJob.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sum, err := a.sched.RunDueTasks(ctx, a.tasks(nil))
			printSummary(cmd.OutOrStdout(), sum.Tasks)
			return err
		})
	},
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run <scrape|affiliate|article>",
	Short: "Run one task now, regardless of its last run",
	Long: `Run one task now, regardless of its last run. The run is logged
like any other, so it resets the task's interval.

With --source only the matching sources run. That run is logged as
"<task>:subset" and leaves the task's interval untouched, so the remaining
sources are still picked up when the task is next due.

Examples:
  ingest-service run scrape
  ingest-service run scrape --source 'uk-*'
  ingest-service run affiliate --source awin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, _ := cmd.Flags().GetString("source")
		match, err := sourceMatcher(pattern)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			task, ok := findTask(a.tasks(match), args[0])
			if !ok {
				return fmt.Errorf("unknown task %q", args[0])
			}
			if task, err = subsetTask(task, pattern); err != nil {
				return err
			}
			ts, err := a.sched.RunNow(ctx, task)
			printSummary(cmd.OutOrStdout(), []scheduler.TaskSummary{ts})
			if err != nil {
				return err
			}
			if ts.Status == scheduler.StatusLocked {
				return fmt.Errorf("task %s is already running elsewhere", task.Type)
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().String("source", "", "glob over source ids, e.g. 'uk-*' (ingestion tasks only)")
}

// sourceMatcher compiles a glob over source ids. An empty pattern matches
// every source.
func sourceMatcher(pattern string) (func(model.Source) bool, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid --source pattern %q: %w", pattern, err)
	}
	return func(src model.Source) bool { return g.Match(src.ID) }, nil
}

// subsetTask marks task as covering only the sources matching pattern.
func subsetTask(task scheduler.Task, pattern string) (scheduler.Task, error) {
	if pattern == "" {
		return task, nil
	}
	if task.Type != model.TaskScrape && task.Type != model.TaskAffiliate {
		return task, fmt.Errorf("--source does not apply to the %s task", task.Type)
	}
	task.Subset = pattern
	return task, nil
}

func findTask(tasks []scheduler.Task, taskType string) (scheduler.Task, bool) {
	for _, t := range tasks {
		if t.Type == taskType {
			return t, true
		}
	}
	return scheduler.Task{}, false
}

// --- seed-sources ---

var seedSourcesCmd = &cobra.Command{
	Use:   "seed-sources [file]",
	Short: "Upsert scrape sites and affiliate networks from a YAML file",
	Long: `Upsert scrape sites and affiliate networks from a YAML file.

The file defaults to SOURCES_FILE. Existing sources keep their last run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			path := a.cfg.SourcesFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no sources file: pass one or set SOURCES_FILE")
			}
			n, err := a.seedSources(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d source(s) from %s\n", n, path)
			return nil
		})
	},
}

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ingest tables if they do not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.store.ApplySchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		})
	},
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent run log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, _ := cmd.Flags().GetString("task")
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			runs, err := a.store.ListRuns(ctx, task, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs, time.Now())
			return nil
		})
	},
}

func init() {
	runsCmd.Flags().String("task", "", "only show this task type")
	runsCmd.Flags().Int("limit", store.DefaultRunLimit, "maximum entries to show")
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and when each last completed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sources, err := a.store.ListSources(ctx)
			if err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), sources, time.Now())
			return nil
		})
	},
}

// --- output ---

func printSummary(w io.Writer, tasks []scheduler.TaskSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tERRORS\tNEXT DUE")
	for _, ts := range tasks {
		next := "-"
		if ts.NextDue != nil {
			next = ts.NextDue.Format(time.RFC3339)
		}
		errs := fmt.Sprint(ts.ErrorCount)
		if ts.Error != "" {
			errs = ts.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ts.Type, ts.Status, errs, next)
	}
	tw.Flush()
}

func printRuns(w io.Writer, runs []model.RunLogEntry, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTASK\tSTATUS\tDETAIL")
	for _, e := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			humanize.RelTime(e.StartedAt, now, "ago", "from now"), e.TaskType, e.Status, describeDetail(e.Detail))
	}
	tw.Flush()
}

func printSources(w io.Writer, sources []model.Source, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tACTIVE\tLAST RUN\tFETCH URL")
	for _, src := range sources {
		last := "never"
		if src.LastRunAt != nil {
			last = humanize.RelTime(*src.LastRunAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", src.ID, src.Kind, src.Active, last, src.FetchURL)
	}
	tw.Flush()
}

// describeDetail condenses a run log detail to one line: the ingestion
// counters when present, the error message for failed runs.
func describeDetail(raw json.RawMessage) string {
	var d struct {
		ingest.Result
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return ""
	}
	if d.Error != "" {
		return "error: " + firstLine(d.Error)
	}
	if d.Sources == 0 && d.Processed == 0 && len(d.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("sources=%d processed=%d created=%d updated=%d errors=%d",
		d.Sources, d.Processed, d.Created, d.Updated, len(d.Errors))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
