// Package ingest runs the fetch → extract → normalize → reconcile pipeline
// over every active source of one kind.
//
// The pipeline is the same for classifieds listings and affiliate products;
// a Strategy supplies the kind-specific steps and a ReconcileFunc persists
// each record. Failures are isolated: a source that cannot be fetched costs
// one error entry, a candidate that cannot be normalized or stored costs one
// error entry, and the run carries on. The only thing that stops a run early
// is the record store becoming unreachable.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pawhub/ingest-service/internal/model"
)

// DefaultMaxCandidates caps the containers examined per source and run.
const DefaultMaxCandidates = 50

// Strategy supplies the kind-specific steps of a job. C is the raw
// candidate type produced by Extract, R the normalized record.
type Strategy[C, R any] interface {
	Fetch(ctx context.Context, src model.Source) ([]byte, error)
	Extract(payload []byte, src model.Source, limit int) []C
	Normalize(c C, src model.Source, now time.Time) (R, error)
	NaturalKey(r R) string
}

// ReconcileFunc inserts or updates r under key and reports whether a new
// record was created.
type ReconcileFunc[R any] func(ctx context.Context, r R, key string) (created bool, err error)

// SourceStore is the slice of the store a job needs for its sources.
type SourceStore interface {
	ActiveSources(ctx context.Context, kind model.SourceKind) ([]model.Source, error)
	TouchSource(ctx context.Context, id string, at time.Time) error
}

// Result is the outcome of one job run. It is also the detail payload
// written to the run log.
type Result struct {
	Sources        int      `json:"sources"`
	Processed      int      `json:"processed"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	SkippedSources int      `json:"skippedSources,omitempty"`
	Errors         []string `json:"errors"`
}

// ErrorCount is the number of source- and item-level errors recorded.
func (r Result) ErrorCount() int { return len(r.Errors) }

// Options tunes a Job. Zero values select the defaults.
type Options struct {
	MaxCandidates int
	Workers       int
	Now           func() time.Time
	Logger        *slog.Logger
}

// Job ingests every active source of one kind.
type Job[C, R any] struct {
	kind      model.SourceKind
	sources   SourceStore
	strategy  Strategy[C, R]
	reconcile ReconcileFunc[R]

	maxCandidates int
	workers       int
	now           func() time.Time
	log           *slog.Logger
}

// New returns a Job for sources of the given kind.
func New[C, R any](kind model.SourceKind, sources SourceStore, strategy Strategy[C, R], reconcile ReconcileFunc[R], opts Options) *Job[C, R] {
	j := &Job[C, R]{
		kind:          kind,
		sources:       sources,
		strategy:      strategy,
		reconcile:     reconcile,
		maxCandidates: opts.MaxCandidates,
		workers:       opts.Workers,
		now:           opts.Now,
		log:           opts.Logger,
	}
	if j.maxCandidates <= 0 {
		j.maxCandidates = DefaultMaxCandidates
	}
	if j.workers <= 0 {
		j.workers = 1
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.log == nil {
		j.log = slog.Default()
	}
	j.log = j.log.With("job", string(kind))
	return j
}

// unavailable reports whether err says the backing store cannot be reached.
func unavailable(err error) bool {
	var u interface{ Unavailable() bool }
	return errors.As(err, &u) && u.Unavailable()
}

// sourceOutcome is what one source contributes to the Result.
type sourceOutcome struct {
	processed, created, updated int
	errs                        []string
}

// Run executes one pass over the active sources. The returned error is
// non-nil only when the store failed in a way that made continuing
// pointless; the partial Result is returned alongside it.
func (j *Job[C, R]) Run(ctx context.Context) (Result, error) {
	res := Result{Errors: []string{}}
	runStart := j.now()

	sources, err := j.sources.ActiveSources(ctx, j.kind)
	if err != nil {
		return res, fmt.Errorf("load %s sources: %w", j.kind, err)
	}
	if len(sources) == 0 {
		j.log.Info("no active sources")
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)

	for _, src := range sources {
		g.Go(func() error {
			// Sources not yet started when the budget runs out are skipped.
			if gctx.Err() != nil {
				mu.Lock()
				res.SkippedSources++
				mu.Unlock()
				return nil
			}
			out, err := j.runSource(gctx, src, runStart)
			mu.Lock()
			res.Sources++
			res.Processed += out.processed
			res.Created += out.created
			res.Updated += out.updated
			res.Errors = append(res.Errors, out.errs...)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if res.SkippedSources > 0 {
		j.log.Warn("run budget exhausted", "skipped_sources", res.SkippedSources, "err", ctx.Err())
		res.Errors = append(res.Errors, fmt.Sprintf("run stopped early: %d source(s) not processed", res.SkippedSources))
	}

	j.log.Info("run complete",
		"sources", res.Sources, "processed", res.Processed,
		"created", res.Created, "updated", res.Updated, "errors", len(res.Errors))
	return res, nil
}

// runSource handles one source. Only a store-unavailable failure is
// returned as an error; everything else is recorded in the outcome.
func (j *Job[C, R]) runSource(ctx context.Context, src model.Source, runStart time.Time) (sourceOutcome, error) {
	var out sourceOutcome
	log := j.log.With("source", src.ID)

	if src.RulesErr != nil {
		out.errs = append(out.errs, fmt.Sprintf("%s: invalid rules: %v", src.DisplayName(), src.RulesErr))
		return out, nil
	}

	payload, err := j.strategy.Fetch(ctx, src)
	if err != nil {
		log.Warn("fetch failed", "err", err)
		out.errs = append(out.errs, fmt.Sprintf("%s: %v", src.DisplayName(), err))
		return out, nil
	}

	candidates := j.strategy.Extract(payload, src, j.maxCandidates)
	log.Info("extracted candidates", "count", len(candidates))

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		rec, err := j.strategy.Normalize(c, src, j.now())
		if err != nil {
			out.errs = append(out.errs, fmt.Sprintf("%s: %v", src.DisplayName(), err))
			continue
		}
		key := j.strategy.NaturalKey(rec)
		created, err := j.reconcile(ctx, rec, key)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if unavailable(err) {
				return out, fmt.Errorf("%s: %w", src.DisplayName(), err)
			}
			out.errs = append(out.errs, fmt.Sprintf("%s: %s: %v", src.DisplayName(), key, err))
			continue
		}
		out.processed++
		if created {
			out.created++
		} else {
			out.updated++
		}
	}

	// A source cut short by the run budget keeps its previous last-run time.
	if ctx.Err() != nil {
		out.errs = append(out.errs, fmt.Sprintf("%s: stopped before completion: %v", src.DisplayName(), ctx.Err()))
		return out, nil
	}
	if err := j.sources.TouchSource(ctx, src.ID, runStart); err != nil {
		if unavailable(err) {
			return out, fmt.Errorf("%s: %w", src.DisplayName(), err)
		}
		log.Warn("touch source failed", "err", err)
		out.errs = append(out.errs, fmt.Sprintf("%s: update last run: %v", src.DisplayName(), err))
	}
	return out, nil
}
