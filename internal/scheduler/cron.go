package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Cron calls RunDueTasks on a fixed spec for deployments without an
// external trigger. The run log still decides what actually runs, so a
// short spec (e.g. "@every 15m") only controls how promptly due tasks are
// noticed.
type Cron struct {
	cron  *cron.Cron
	sched *Scheduler
	tasks []Task
	spec  string
}

// NewCron wraps sched with a robfig/cron timer firing on spec.
func NewCron(sched *Scheduler, spec string, tasks []Task) *Cron {
	return &Cron{
		cron: cron.New(
			cron.WithLogger(cron.DefaultLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		sched: sched,
		tasks: tasks,
		spec:  spec,
	}
}

// Start registers the tick and starts the timer. One pass runs immediately
// so a fresh deployment does not wait for the first tick.
func (c *Cron) Start(ctx context.Context) error {
	if _, err := c.cron.AddFunc(c.spec, func() { c.tick(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	c.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", c.spec)

	go c.tick(ctx)
	return nil
}

// Stop halts the timer and waits for a running pass to finish.
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
	log.Println("[scheduler] Cron stopped")
}

func (c *Cron) tick(ctx context.Context) {
	sum, err := c.sched.RunDueTasks(ctx, c.tasks)
	if err != nil {
		log.Printf("[scheduler] RunDueTasks error: %v", err)
		return
	}
	log.Printf("[scheduler] Tick complete — ran=%d failed=%d", sum.Ran(), sum.Failed())
}
