package ws

import (
	"context"
	"encoding/json"
	"time"

	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventsChannel       = "jobs:events"
	EventTypeJobsUpdate = "jobs_updated"
)

type JobsUpdatedEvent struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Timestamp string `json:"timestamp"`
}

func NewJobsUpdatedEvent(runID string, inserted, updated int, at time.Time) JobsUpdatedEvent {
	return JobsUpdatedEvent{
		Type:      EventTypeJobsUpdate,
		RunID:     runID,
		Inserted:  inserted,
		Updated:   updated,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// Publisher announces finished collection cycles on the Redis events channel.
// With no Redis client it broadcasts straight to the local hub, if any.
type Publisher struct {
	rdb *redis.Client
	hub *Hub
	log *zap.SugaredLogger
	now func() time.Time
}

func NewPublisher(rdb *redis.Client, hub *Hub, log *zap.SugaredLogger) *Publisher {
	return &Publisher{rdb: rdb, hub: hub, log: logger.OrNop(log), now: time.Now}
}

func (p *Publisher) PublishJobsUpdated(ctx context.Context, runID string, inserted, updated int) error {
	if p == nil {
		return nil
	}
	b, err := json.Marshal(NewJobsUpdatedEvent(runID, inserted, updated, p.now()))
	if err != nil {
		return err
	}
	if p.rdb == nil {
		p.hub.Broadcast(b)
		return nil
	}
	if err := p.rdb.Publish(ctx, EventsChannel, b).Err(); err != nil {
		return errors.Wrap(err, "publish jobs_updated")
	}
	p.log.Infow("jobs_updated published", "run_id", runID, "inserted", inserted, "updated", updated)
	return nil
}

// Invalidator drops cached views that a jobs_updated event makes stale.
type Invalidator interface {
	InvalidateLatest(ctx context.Context) error
}

// Relay forwards events from the Redis channel to the hub.
type Relay struct {
	rdb   *redis.Client
	hub   *Hub
	cache Invalidator
	log   *zap.SugaredLogger
}

func NewRelay(rdb *redis.Client, hub *Hub, cache Invalidator, log *zap.SugaredLogger) *Relay {
	return &Relay{rdb: rdb, hub: hub, cache: cache, log: logger.OrNop(log)}
}

// Run subscribes and relays until ctx is done. It returns immediately when no
// Redis client is configured.
func (r *Relay) Run(ctx context.Context) {
	if r == nil || r.rdb == nil {
		return
	}
	sub := r.rdb.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.Handle(ctx, []byte(msg.Payload))
		}
	}
}

// Handle processes one event payload.
func (r *Relay) Handle(ctx context.Context, payload []byte) {
	var evt JobsUpdatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.log.Warnw("ws relay: bad event", "error", err)
		return
	}
	if evt.Type == EventTypeJobsUpdate && r.cache != nil {
		if err := r.cache.InvalidateLatest(ctx); err != nil {
			r.log.Warnw("ws relay: cache invalidation failed", "run_id", evt.RunID, "error", err)
		}
	}
	r.hub.Broadcast(payload)
}
