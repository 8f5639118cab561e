package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/scheduler"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type memRunLog struct {
	mu        sync.Mutex
	entries   []model.RunLogEntry
	readErr   error
	appendErr error
}

func (m *memRunLog) LatestRun(_ context.Context, taskType string) (*model.RunLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var latest *model.RunLogEntry
	for i := range m.entries {
		e := m.entries[i]
		if e.TaskType == taskType && (latest == nil || e.StartedAt.After(latest.StartedAt)) {
			latest = &e
		}
	}
	return latest, nil
}

func (m *memRunLog) AppendRun(_ context.Context, e model.RunLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRunLog) count(taskType string) int {
	n := 0
	for _, e := range m.entries {
		if e.TaskType == taskType {
			n++
		}
	}
	return n
}

type heldLocker struct{ held map[string]bool }

func (l heldLocker) TryLock(_ context.Context, key string) (func(context.Context) error, bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	return func(context.Context) error { return nil }, true, nil
}

type recordingNotifier struct{ got []model.RunLogEntry }

func (n *recordingNotifier) Notify(_ context.Context, e model.RunLogEntry) error {
	n.got = append(n.got, e)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func countingTask(taskType string, interval time.Duration, calls *int) scheduler.Task {
	return scheduler.Task{
		Type:     taskType,
		Interval: interval,
		Run: func(context.Context, scheduler.Trigger) (any, error) {
			*calls++
			return map[string]int{"processed": 3}, nil
		},
	}
}

// ── Gate ───────────────────────────────────────────────────────────────────

func TestRunDueTasks_IntervalGate(t *testing.T) {
	const interval = 6 * time.Hour
	runs := &memRunLog{}
	clk := &clock{t: t0}
	sched := scheduler.New(runs, scheduler.WithClock(clk.now))

	calls := 0
	tasks := []scheduler.Task{countingTask("scrape", interval, &calls)}

	steps := []struct {
		at      time.Time
		want    scheduler.Status
		wantRan int
	}{
		{t0, scheduler.StatusRan, 1},                                 // never run
		{t0.Add(interval - time.Second), scheduler.StatusSkipped, 1}, // just before due
		{t0.Add(interval + time.Second), scheduler.StatusRan, 2},     // just after due
	}
	for i, step := range steps {
		clk.t = step.at
		sum, err := sched.RunDueTasks(context.Background(), tasks)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		ts, _ := sum.Task("scrape")
		if ts.Status != step.want {
			t.Errorf("step %d: status = %s, want %s", i, ts.Status, step.want)
		}
		if calls != step.wantRan {
			t.Errorf("step %d: job ran %d times, want %d", i, calls, step.wantRan)
		}
	}
	if got := runs.count("scrape"); got != 2 {
		t.Errorf("run log has %d entries, want 2 (skips append nothing)", got)
	}
}

func TestRunDueTasks_ExactlyAtIntervalIsDue(t *testing.T) {
	runs := &memRunLog{entries: []model.RunLogEntry{{TaskType: "affiliate", StartedAt: t0, Status: model.RunSuccess}}}
	sched := scheduler.New(runs, scheduler.WithClock(func() time.Time { return t0.Add(24 * time.Hour) }))

	calls := 0
	sum, err := sched.RunDueTasks(context.Background(), []scheduler.Task{countingTask("affiliate", 24*time.Hour, &calls)})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	if calls != 1 || sum.Ran() != 1 {
		t.Errorf("calls = %d, ran = %d, want 1", calls, sum.Ran())
	}
}

func TestRunDueTasks_SkippedReportsNextDue(t *testing.T) {
	runs := &memRunLog{entries: []model.RunLogEntry{{TaskType: "scrape", StartedAt: t0}}}
	sched := scheduler.New(runs, scheduler.WithClock(func() time.Time { return t0.Add(time.Hour) }))

	calls := 0
	sum, err := sched.RunDueTasks(context.Background(), []scheduler.Task{countingTask("scrape", 6*time.Hour, &calls)})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	ts, _ := sum.Task("scrape")
	if ts.LastRun == nil || !ts.LastRun.Equal(t0) {
		t.Errorf("LastRun = %v, want %v", ts.LastRun, t0)
	}
	if ts.NextDue == nil || !ts.NextDue.Equal(t0.Add(6*time.Hour)) {
		t.Errorf("NextDue = %v", ts.NextDue)
	}
}

// ── Failures ───────────────────────────────────────────────────────────────

func TestRunDueTasks_JobErrorIsLoggedAndNextTaskRuns(t *testing.T) {
	runs := &memRunLog{}
	sched := scheduler.New(runs, scheduler.WithClock(func() time.Time { return t0 }))

	failing := scheduler.Task{
		Type:     "scrape",
		Interval: time.Hour,
		Run: func(context.Context, scheduler.Trigger) (any, error) {
			return map[string]int{"processed": 1}, errors.New("store unavailable")
		},
	}
	calls := 0
	sum, err := sched.RunDueTasks(context.Background(), []scheduler.Task{failing, countingTask("affiliate", time.Hour, &calls)})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	if calls != 1 {
		t.Error("the task after a failing job should still run")
	}
	if sum.Failed() != 1 || sum.Ran() != 2 {
		t.Errorf("failed/ran = %d/%d, want 1/2", sum.Failed(), sum.Ran())
	}

	if len(runs.entries) != 2 {
		t.Fatalf("run log has %d entries, want 2", len(runs.entries))
	}
	failed := runs.entries[0]
	if failed.Status != model.RunError {
		t.Errorf("status = %s, want error", failed.Status)
	}
	var detail struct {
		Error   string         `json:"error"`
		Partial map[string]int `json:"partial"`
	}
	if err := json.Unmarshal(failed.Detail, &detail); err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Error != "store unavailable" || detail.Partial["processed"] != 1 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestRunDueTasks_RunLogReadFailureIsReturned(t *testing.T) {
	runs := &memRunLog{readErr: errors.New("connection refused")}
	calls := 0
	_, err := scheduler.New(runs).RunDueTasks(context.Background(), []scheduler.Task{countingTask("scrape", time.Hour, &calls)})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v, want run log failure", err)
	}
	if calls != 0 {
		t.Error("no job should run when the run log cannot be read")
	}
}

func TestRunDueTasks_RunLogAppendFailureIsReturned(t *testing.T) {
	runs := &memRunLog{appendErr: errors.New("disk full")}
	calls := 0
	sum, err := scheduler.New(runs).RunDueTasks(context.Background(), []scheduler.Task{
		countingTask("scrape", time.Hour, &calls),
		countingTask("affiliate", time.Hour, &calls),
	})
	if err == nil {
		t.Fatal("append failure should be returned")
	}
	if calls != 1 || len(sum.Tasks) != 0 {
		t.Errorf("calls = %d, summarised = %d; want the invocation to stop at the failing append", calls, len(sum.Tasks))
	}
}

// ── Trigger, lock, notifier, budget ────────────────────────────────────────

func TestRunDueTasks_PassesAutomationTrigger(t *testing.T) {
	var got scheduler.Trigger
	task := scheduler.Task{Type: "article", Interval: time.Hour, Run: func(_ context.Context, trig scheduler.Trigger) (any, error) {
		got = trig
		return json.RawMessage(`{"generated":2}`), nil
	}}
	runs := &memRunLog{}
	if _, err := scheduler.New(runs).RunDueTasks(context.Background(), []scheduler.Task{task}); err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	if got.Source != scheduler.SourceAutomation {
		t.Errorf("trigger source = %q", got.Source)
	}
	if string(runs.entries[0].Detail) != `{"generated":2}` {
		t.Errorf("detail = %s, want the job's response verbatim", runs.entries[0].Detail)
	}
}

func TestRunNow_BypassesGateAndAppends(t *testing.T) {
	runs := &memRunLog{entries: []model.RunLogEntry{{TaskType: "scrape", StartedAt: t0}}}
	sched := scheduler.New(runs, scheduler.WithClock(func() time.Time { return t0.Add(time.Minute) }))

	var trig scheduler.Trigger
	task := scheduler.Task{Type: "scrape", Interval: 6 * time.Hour, Run: func(_ context.Context, tr scheduler.Trigger) (any, error) {
		trig = tr
		return nil, nil
	}}
	ts, err := sched.RunNow(context.Background(), task)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if ts.Status != scheduler.StatusRan || trig.Source != scheduler.SourceManual {
		t.Errorf("status = %s, trigger = %q", ts.Status, trig.Source)
	}
	if runs.count("scrape") != 2 {
		t.Errorf("manual run should append an entry, have %d", runs.count("scrape"))
	}
}

func TestRunDueTasks_LockedTaskIsNotRun(t *testing.T) {
	runs := &memRunLog{}
	locker := heldLocker{held: map[string]bool{"ingest:task:scrape": true}}
	calls := 0

	sum, err := scheduler.New(runs, scheduler.WithLocker(locker)).RunDueTasks(context.Background(), []scheduler.Task{
		countingTask("scrape", time.Hour, &calls),
		countingTask("affiliate", time.Hour, &calls),
	})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	ts, _ := sum.Task("scrape")
	if ts.Status != scheduler.StatusLocked {
		t.Errorf("scrape status = %s, want locked", ts.Status)
	}
	if calls != 1 || runs.count("scrape") != 0 {
		t.Errorf("calls = %d, scrape entries = %d", calls, runs.count("scrape"))
	}
}

func TestRunDueTasks_NotifiesAppendedEntries(t *testing.T) {
	n := &recordingNotifier{}
	calls := 0
	if _, err := scheduler.New(&memRunLog{}, scheduler.WithNotifier(n)).RunDueTasks(context.Background(), []scheduler.Task{countingTask("scrape", time.Hour, &calls)}); err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	if len(n.got) != 1 || n.got[0].TaskType != "scrape" || n.got[0].Status != model.RunSuccess {
		t.Errorf("notified = %+v", n.got)
	}
}

func TestRunDueTasks_RunBudgetBoundsJob(t *testing.T) {
	task := scheduler.Task{Type: "scrape", Interval: time.Hour, Run: func(ctx context.Context, _ scheduler.Trigger) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	sum, err := scheduler.New(&memRunLog{}, scheduler.WithRunBudget(10*time.Millisecond)).RunDueTasks(context.Background(), []scheduler.Task{task})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	if sum.Failed() != 1 {
		t.Errorf("a job over budget should be recorded as failed")
	}
}

func TestRunNow_SubsetRunLeavesScheduleAlone(t *testing.T) {
	const interval = 6 * time.Hour
	runs := &memRunLog{entries: []model.RunLogEntry{{TaskType: "scrape", StartedAt: t0.Add(-interval)}}}
	clk := &clock{t: t0}
	sched := scheduler.New(runs, scheduler.WithClock(clk.now))

	calls := 0
	full := countingTask("scrape", interval, &calls)
	subset := full
	subset.Subset = "uk-*"

	ts, err := sched.RunNow(context.Background(), subset)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if ts.Status != scheduler.StatusRan || ts.NextDue != nil {
		t.Errorf("subset run: status = %s, next due = %v", ts.Status, ts.NextDue)
	}
	if runs.count("scrape"+scheduler.SubsetSuffix) != 1 || runs.count("scrape") != 1 {
		t.Errorf("entries: subset = %d, scrape = %d; want 1 and the old 1", runs.count("scrape"+scheduler.SubsetSuffix), runs.count("scrape"))
	}

	clk.t = t0.Add(time.Minute)
	sum, err := sched.RunDueTasks(context.Background(), []scheduler.Task{full})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	if got, _ := sum.Task("scrape"); got.Status != scheduler.StatusRan {
		t.Errorf("full task after a subset run: status = %s, want ran", got.Status)
	}
	if calls != 2 {
		t.Errorf("job ran %d times, want 2", calls)
	}
}

func TestRunNow_SubsetSharesTaskLock(t *testing.T) {
	locker := heldLocker{held: map[string]bool{"ingest:task:scrape": true}}
	calls := 0
	task := countingTask("scrape", time.Hour, &calls)
	task.Subset = "uk-*"

	ts, err := scheduler.New(&memRunLog{}, scheduler.WithLocker(locker)).RunNow(context.Background(), task)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if ts.Status != scheduler.StatusLocked || calls != 0 {
		t.Errorf("status = %s, calls = %d; want locked and not run", ts.Status, calls)
	}
}

func TestRunDueTasks_PanickingJobIsRecordedAndNextTaskRuns(t *testing.T) {
	runs := &memRunLog{}
	n := &recordingNotifier{}
	panicking := scheduler.Task{Type: "scrape", Interval: time.Hour, Run: func(context.Context, scheduler.Trigger) (any, error) {
		var m map[string]int
		m["boom"]++
		return nil, nil
	}}
	calls := 0

	sum, err := scheduler.New(runs, scheduler.WithNotifier(n)).RunDueTasks(context.Background(), []scheduler.Task{
		panicking,
		countingTask("affiliate", time.Hour, &calls),
	})
	if err != nil {
		t.Fatalf("RunDueTasks: %v", err)
	}
	ts, _ := sum.Task("scrape")
	if ts.Status != scheduler.StatusFailed || !strings.Contains(ts.Error, "job panicked") {
		t.Errorf("scrape: status = %s, error = %q", ts.Status, ts.Error)
	}
	if calls != 1 {
		t.Error("the task after a panicking job should still run")
	}
	if runs.count("scrape") != 1 || runs.entries[0].Status != model.RunError {
		t.Errorf("run log = %+v, want one error entry for scrape", runs.entries)
	}
	if len(n.got) != 2 {
		t.Errorf("notified %d entries, want 2", len(n.got))
	}
}
