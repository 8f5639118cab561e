// Package scheduler decides which periodic tasks are due and runs them.
//
// The run log is the only clock the scheduler trusts: a task is due when
// it has no entry yet or its newest entry started at least Interval ago.
// Every executed task appends exactly one entry, success or error; a
// skipped task appends nothing. Invocations come from an external trigger
// (the HTTP endpoint) or the optional in-process Cron.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"pawhub/ingest-service/internal/model"
)

// Trigger sources passed to every job.
const (
	SourceAutomation = "automation"
	SourceManual     = "manual"
)

// Trigger tells a job who started it.
type Trigger struct {
	Source string `json:"source"`
}

// JobFunc runs one task. The returned detail is written to the run log
// verbatim (JSON-encoded), also when err is non-nil.
type JobFunc func(ctx context.Context, trig Trigger) (detail any, err error)

// Task is one schedulable unit of work.
type Task struct {
	Type     string
	Interval time.Duration
	Run      JobFunc

	// Subset, when set, names the part of the task's work this Run covers
	// (a source glob, say). Such runs are logged under LogType and never
	// count towards the interval of Type.
	Subset string
}

// SubsetSuffix marks the run log type of a subset run.
const SubsetSuffix = ":subset"

// LogType is the run log task type entries of this task are appended under.
func (t Task) LogType() string {
	if t.Subset != "" {
		return t.Type + SubsetSuffix
	}
	return t.Type
}

// RunLog is the append-only record of executed tasks.
type RunLog interface {
	LatestRun(ctx context.Context, taskType string) (*model.RunLogEntry, error)
	AppendRun(ctx context.Context, e model.RunLogEntry) error
}

// Locker serialises overlapping invocations for the same task. ok is false
// when another invocation holds the lock.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, ok bool, err error)
}

// Notifier is told about every appended run log entry.
type Notifier interface {
	Notify(ctx context.Context, e model.RunLogEntry) error
}

// Status of a task within one invocation.
type Status string

const (
	StatusRan     Status = "ran"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusLocked  Status = "locked"
)

// TaskSummary describes what happened to one task.
type TaskSummary struct {
	Type    string          `json:"-"`
	Status  Status          `json:"status"`
	LastRun *time.Time      `json:"lastRun"`
	NextDue *time.Time      `json:"nextDue"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	Error   string          `json:"error,omitempty"`

	// ErrorCount is taken from details that report one (ingest results).
	ErrorCount int `json:"errorCount,omitempty"`
}

// Summary is the outcome of one RunDueTasks invocation, in task order.
type Summary struct {
	Tasks []TaskSummary
}

// Ran counts the tasks that executed, successfully or not.
func (s Summary) Ran() int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == StatusRan || t.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Failed counts the tasks whose job returned an error.
func (s Summary) Failed() int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Errors sums the error counts reported by executed tasks.
func (s Summary) Errors() int {
	n := 0
	for _, t := range s.Tasks {
		n += t.ErrorCount
	}
	return n
}

// Task returns the summary for taskType.
func (s Summary) Task(taskType string) (TaskSummary, bool) {
	for _, t := range s.Tasks {
		if t.Type == taskType {
			return t, true
		}
	}
	return TaskSummary{}, false
}

// Scheduler runs due tasks against a RunLog.
type Scheduler struct {
	runs     RunLog
	locker   Locker
	notifier Notifier
	now      func() time.Time
	budget   time.Duration
	log      *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithLocker guards decide+append per task type.
func WithLocker(l Locker) Option { return func(s *Scheduler) { s.locker = l } }

// WithNotifier publishes every appended entry.
func WithNotifier(n Notifier) Option { return func(s *Scheduler) { s.notifier = n } }

// WithRunBudget bounds the wall-clock time of each job.
func WithRunBudget(d time.Duration) Option { return func(s *Scheduler) { s.budget = d } }

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// New returns a Scheduler reading and appending to runs.
func New(runs RunLog, opts ...Option) *Scheduler {
	s := &Scheduler{runs: runs, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

// RunDueTasks runs every due task in order. A failing job is recorded and
// the next task still runs. The returned error is non-nil only when the run
// log itself could not be read or written; the summary then covers the
// tasks handled so far.
func (s *Scheduler) RunDueTasks(ctx context.Context, tasks []Task) (Summary, error) {
	var sum Summary
	for _, task := range tasks {
		ts, err := s.runIfDue(ctx, task)
		if err != nil {
			return sum, err
		}
		sum.Tasks = append(sum.Tasks, ts)
	}
	s.log.Info("due tasks handled", "tasks", len(sum.Tasks), "ran", sum.Ran(), "failed", sum.Failed())
	return sum, nil
}

func (s *Scheduler) runIfDue(ctx context.Context, task Task) (TaskSummary, error) {
	unlock, ok := s.lock(ctx, task.Type)
	if !ok {
		return TaskSummary{Type: task.Type, Status: StatusLocked}, nil
	}
	defer unlock()

	latest, err := s.runs.LatestRun(ctx, task.Type)
	if err != nil {
		return TaskSummary{}, fmt.Errorf("read run log for %s: %w", task.Type, err)
	}
	now := s.now()
	if latest != nil && now.Sub(latest.StartedAt) < task.Interval {
		last := latest.StartedAt
		next := last.Add(task.Interval)
		s.log.Debug("task not due", "task", task.Type, "next_due", next)
		return TaskSummary{Type: task.Type, Status: StatusSkipped, LastRun: &last, NextDue: &next}, nil
	}
	return s.execute(ctx, task, Trigger{Source: SourceAutomation}, now)
}

// RunNow executes task regardless of its last run, as an operator-initiated
// run. The entry is appended like any other run; for a subset task it goes
// under LogType and the full task's schedule is left alone.
func (s *Scheduler) RunNow(ctx context.Context, task Task) (TaskSummary, error) {
	unlock, ok := s.lock(ctx, task.Type)
	if !ok {
		return TaskSummary{Type: task.Type, Status: StatusLocked}, nil
	}
	defer unlock()
	return s.execute(ctx, task, Trigger{Source: SourceManual}, s.now())
}

// lock acquires the task lock when a Locker is configured. A locker that
// errors is logged and the task runs unguarded.
func (s *Scheduler) lock(ctx context.Context, taskType string) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	unlock, ok, err := s.locker.TryLock(ctx, "ingest:task:"+taskType)
	if err != nil {
		s.log.Warn("task lock unavailable, running unguarded", "task", taskType, "err", err)
		return noop, true
	}
	if !ok {
		s.log.Info("task already running elsewhere", "task", taskType)
		return noop, false
	}
	return func() {
		// The job context may be done by now; release on a fresh one.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("task unlock failed", "task", taskType, "err", err)
		}
	}, true
}

func (s *Scheduler) execute(ctx context.Context, task Task, trig Trigger, startedAt time.Time) (TaskSummary, error) {
	log := s.log.With("task", task.LogType(), "trigger", trig.Source)
	log.Info("task started")

	runCtx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}
	detail, jobErr := s.runJob(runCtx, task, trig)

	entry := model.RunLogEntry{
		ID:        uuid.NewString(),
		TaskType:  task.LogType(),
		StartedAt: startedAt,
		Status:    model.RunSuccess,
	}
	ts := TaskSummary{Type: task.Type, Status: StatusRan, LastRun: &startedAt}
	if jobErr != nil {
		log.Error("task failed", "err", jobErr)
		entry.Status = model.RunError
		ts.Status = StatusFailed
		ts.Error = jobErr.Error()
		entry.Detail = encodeDetail(errorDetail{Error: jobErr.Error(), Partial: detail})
	} else {
		entry.Detail = encodeDetail(detail)
	}
	ts.Detail = entry.Detail
	if c, ok := detail.(interface{ ErrorCount() int }); ok {
		ts.ErrorCount = c.ErrorCount()
	}
	if task.Subset == "" {
		next := startedAt.Add(task.Interval)
		ts.NextDue = &next
	}

	if err := s.runs.AppendRun(ctx, entry); err != nil {
		return ts, fmt.Errorf("append run log for %s: %w", task.Type, err)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, entry); err != nil {
			log.Warn("run notification failed", "err", err)
		}
	}
	log.Info("task finished", "status", entry.Status, "elapsed", s.now().Sub(startedAt))
	return ts, nil
}

// runJob calls task.Run, turning a panic into the run's error so it is
// logged like any other failure.
func (s *Scheduler) runJob(ctx context.Context, task Task, trig Trigger) (detail any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", "task", task.Type, "panic", r, "stack", string(debug.Stack()))
			detail, err = nil, fmt.Errorf("job panicked: %v", r)
		}
	}()
	return task.Run(ctx, trig)
}

type errorDetail struct {
	Error   string `json:"error"`
	Partial any    `json:"partial,omitempty"`
}

func encodeDetail(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage(`{}`)
	}
	if raw, ok := v.(json.RawMessage); ok && json.Valid(raw) {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(errorDetail{Error: "unencodable detail: " + err.Error()})
	}
	return b
}
