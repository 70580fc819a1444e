package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mc-bench/scoring-core/internal/model"
)

// DefaultGateTTL is how long a SingleFlightGate key blocks further triggers
// of the same rating system after a successful enqueue, coalescing every
// vote recorded within the window into the one already-queued run (spec §6).
var DefaultGateTTL = map[model.RatingSystem]time.Duration{
	model.RatingSystemElo:    5 * time.Minute,
	model.RatingSystemGlicko: time.Hour,
}

// TriggerOutcome reports whether a Trigger call actually enqueued a job.
type TriggerOutcome int

const (
	Skipped TriggerOutcome = iota
	Enqueued
)

// JobEnqueuer is the subset of JobQueue the gate needs to dispatch a rating
// run. Kept local so gate does not import the queue package.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, target string, payload []byte) error
}

// SingleFlightGate debounces RatingEngine triggers per rating system using
// a Redis SET-NX-with-TTL key, the same atomic-primitive idiom the rate
// limiter uses for its sorted-set window, simplified here to a single
// command since no read-modify-write is needed (spec §6).
type SingleFlightGate struct {
	client *redis.Client
	queue  JobEnqueuer
	ttl    map[model.RatingSystem]time.Duration
}

// NewSingleFlightGate wires a gate against an existing Redis client and the
// queue used to dispatch rating-run jobs.
func NewSingleFlightGate(client *redis.Client, queue JobEnqueuer) *SingleFlightGate {
	return &SingleFlightGate{client: client, queue: queue, ttl: DefaultGateTTL}
}

func gateKey(system model.RatingSystem) string {
	return "mcbench:rating-gate:" + string(system)
}

func targetFor(system model.RatingSystem) string {
	if system == model.RatingSystemElo {
		return "elo_calculation"
	}
	return "glicko_calculation"
}

// Trigger attempts to claim the gate for system and, on success, enqueues
// the corresponding rating job. A claim failure (key already held) means
// a run for this system is already pending or in flight, so the caller's
// vote is silently coalesced into it (spec §6: "VoteRecorder never blocks
// on or waits for a rating run").
func (g *SingleFlightGate) Trigger(ctx context.Context, system model.RatingSystem) (TriggerOutcome, error) {
	ttl, ok := g.ttl[system]
	if !ok {
		ttl = 5 * time.Minute
	}

	claimed, err := g.client.SetNX(ctx, gateKey(system), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return Skipped, fmt.Errorf("gate: claim %s: %w", system, err)
	}
	if !claimed {
		return Skipped, nil
	}

	if err := g.queue.Enqueue(ctx, targetFor(system), []byte(`{"rating_system":"`+string(system)+`"}`)); err != nil {
		return Skipped, fmt.Errorf("gate: enqueue %s job: %w", system, err)
	}
	return Enqueued, nil
}

// Release deletes the gate key for system. RatingEngine calls this on
// normal exit so the next vote can coalesce a fresh run immediately rather
// than waiting out the rest of the TTL (spec §4.4: "the key is deleted by
// RatingEngine on normal exit and expires otherwise").
func (g *SingleFlightGate) Release(ctx context.Context, system model.RatingSystem) error {
	if err := g.client.Del(ctx, gateKey(system)).Err(); err != nil {
		return fmt.Errorf("gate: release %s: %w", system, err)
	}
	return nil
}
