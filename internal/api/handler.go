// Package api exposes the ingest service over HTTP.
//
// Routes:
//
//	GET       /health                    → liveness plus database ping
//	GET|POST  /cron/run                  → run every due task (external timer)
//	POST      /admin/jobs/{type}/run     → run one task now, admin only
//	GET       /admin/runs?task=&limit=   → recent run log entries, admin only
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/scheduler"
)

// Runner is the scheduler as the HTTP layer sees it.
type Runner interface {
	RunDueTasks(ctx context.Context, tasks []scheduler.Task) (scheduler.Summary, error)
	RunNow(ctx context.Context, task scheduler.Task) (scheduler.TaskSummary, error)
}

// RunLister reads the run log for the admin listing.
type RunLister interface {
	ListRuns(ctx context.Context, taskType string, limit int) ([]model.RunLogEntry, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the handlers need.
type Deps struct {
	Scheduler  Runner
	Tasks      []scheduler.Task
	Runs       RunLister
	Authorizer Authorizer
	CronSecret string
	Health     Pinger // optional
	Version    string
	Logger     *slog.Logger
}

// ─── Response types ───────────────────────────────────────────────────────────

// TriggerResponse is the body of /cron/run.
type TriggerResponse struct {
	Success           bool                             `json:"success"`
	Message           string                           `json:"message"`
	Tasks             map[string]scheduler.TaskSummary `json:"tasks"`
	LastScrape        *time.Time                       `json:"lastScrape"`
	LastAffiliateSync *time.Time                       `json:"lastAffiliateSync"`
	LastArticleRun    *time.Time                       `json:"lastArticleRun"`
}

// ManualRunResponse is the body of /admin/jobs/{type}/run.
type ManualRunResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Task    string                `json:"task"`
	Result  scheduler.TaskSummary `json:"result"`
}

type handler struct {
	Deps
	byType map[string]scheduler.Task
}

// NewRouter mounts every route on a chi router.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Authorizer == nil {
		deps.Authorizer = GatewayHeaders{}
	}
	h := &handler{Deps: deps, byType: make(map[string]scheduler.Task, len(deps.Tasks))}
	for _, t := range deps.Tasks {
		h.byType[t.Type] = t
	}

	r := chi.NewRouter()
	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(CronSecret(deps.CronSecret))
		r.Get("/cron/run", h.runDue)
		r.Post("/cron/run", h.runDue)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(deps.Authorizer, RoleAdmin))
		r.Post("/jobs/{type}/run", h.runNow)
		r.Get("/runs", h.listRuns)
	})
	return r
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health.Ping(ctx); err != nil {
			h.Logger.Warn("health check failed", "err", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"service": "ingest-service",
		"version": h.Version,
	})
}

func (h *handler) runDue(w http.ResponseWriter, r *http.Request) {
	// A caller hanging up must not abort a run halfway; the scheduler's own
	// run budget bounds it.
	ctx := context.WithoutCancel(r.Context())

	sum, err := h.Scheduler.RunDueTasks(ctx, h.Tasks)
	resp := TriggerResponse{
		Success: err == nil,
		Tasks:   make(map[string]scheduler.TaskSummary, len(sum.Tasks)),
	}
	for _, ts := range sum.Tasks {
		resp.Tasks[ts.Type] = ts
	}
	resp.LastScrape = lastRun(sum, model.TaskScrape)
	resp.LastAffiliateSync = lastRun(sum, model.TaskAffiliate)
	resp.LastArticleRun = lastRun(sum, model.TaskArticle)

	if err != nil {
		h.Logger.Error("scheduler infrastructure failure", "err", err)
		resp.Message = fmt.Sprintf("infrastructure failure after %d task(s): %v", len(sum.Tasks), err)
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Message = triggerMessage(sum)
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) runNow(w http.ResponseWriter, r *http.Request) {
	taskType := chi.URLParam(r, "type")
	task, ok := h.byType[taskType]
	if !ok {
		jsonError(w, fmt.Sprintf("unknown job type %q", taskType), http.StatusNotFound)
		return
	}

	ts, err := h.Scheduler.RunNow(context.WithoutCancel(r.Context()), task)
	if err != nil {
		h.Logger.Error("manual run infrastructure failure", "task", taskType, "err", err)
		writeJSON(w, http.StatusInternalServerError, ManualRunResponse{
			Message: fmt.Sprintf("infrastructure failure: %v", err), Task: taskType, Result: ts,
		})
		return
	}

	resp := ManualRunResponse{Success: ts.Status == scheduler.StatusRan, Task: taskType, Result: ts}
	code := http.StatusOK
	switch ts.Status {
	case scheduler.StatusLocked:
		resp.Message = "job is already running"
		code = http.StatusConflict
	case scheduler.StatusFailed:
		resp.Message = "job failed: " + ts.Error
	default:
		resp.Message = fmt.Sprintf("job completed with %d error(s)", ts.ErrorCount)
	}
	writeJSON(w, code, resp)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			jsonError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.Runs.ListRuns(r.Context(), r.URL.Query().Get("task"), limit)
	if err != nil {
		h.Logger.Error("list runs failed", "err", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func lastRun(sum scheduler.Summary, taskType string) *time.Time {
	if ts, ok := sum.Task(taskType); ok {
		return ts.LastRun
	}
	return nil
}

func triggerMessage(sum scheduler.Summary) string {
	ran := sum.Ran()
	if ran == 0 {
		if len(sum.Tasks) > 0 && locked(sum) {
			return "nothing ran: due tasks are already running elsewhere"
		}
		return "nothing was due"
	}
	return fmt.Sprintf("ran %d task(s): %d failed, %d source/item error(s)", ran, sum.Failed(), sum.Errors())
}

func locked(sum scheduler.Summary) bool {
	for _, ts := range sum.Tasks {
		if ts.Status == scheduler.StatusLocked {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}
