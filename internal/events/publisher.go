// Package events announces finished task runs on Redis pub/sub so other
// services (cache warmers, the admin UI) can react without polling the run
// log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pawhub/ingest-service/internal/model"
)

// ChannelRunCompleted carries one message per appended run log entry.
const ChannelRunCompleted = "EVENT_INGEST_RUN_COMPLETED"

// RunCompleted is the published payload.
type RunCompleted struct {
	Type      string          `json:"type"`
	RunID     string          `json:"runId"`
	TaskType  string          `json:"taskType"`
	Status    model.RunStatus `json:"status"`
	StartedAt string          `json:"startedAt"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Publisher publishes run events.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher returns a Publisher on rdb.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Notify publishes e on ChannelRunCompleted.
func (p *Publisher) Notify(ctx context.Context, e model.RunLogEntry) error {
	event, err := json.Marshal(RunCompleted{
		Type:      ChannelRunCompleted,
		RunID:     e.ID,
		TaskType:  e.TaskType,
		Status:    e.Status,
		StartedAt: e.StartedAt.UTC().Format(time.RFC3339),
		Detail:    e.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if err := p.rdb.Publish(ctx, ChannelRunCompleted, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelRunCompleted, err)
	}
	return nil
}
