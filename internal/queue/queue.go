// Package queue dispatches rating-run jobs to the asynchronous workers that
// run RatingEngine, over RabbitMQ (spec §6: "SingleFlightGate enqueues a job
// naming the rating system").
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobQueue dispatches named jobs with an opaque payload. Target is the
// routing key/queue name ("elo_calculation" or "glicko_calculation").
type JobQueue interface {
	Enqueue(ctx context.Context, target string, payload []byte) error
	Close() error
}

// RabbitQueue is the JobQueue used in every deployed environment, built
// directly against amqp091-go: one durable queue per rating system, declared
// lazily on first publish, published with delivery mode 2 (persistent) so a
// broker restart does not drop a pending rating run.
type RabbitQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	logger   *slog.Logger
	declared map[string]bool
}

// Connect dials amqpURL and opens the channel every Enqueue call reuses.
func Connect(amqpURL string, logger *slog.Logger) (*RabbitQueue, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	return &RabbitQueue{conn: conn, ch: ch, logger: logger, declared: make(map[string]bool)}, nil
}

func (q *RabbitQueue) ensureQueue(target string) error {
	if q.declared[target] {
		return nil
	}
	_, err := q.ch.QueueDeclare(target, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: declare %s: %w", target, err)
	}
	q.declared[target] = true
	return nil
}

// Enqueue publishes payload to target. Rating runs are idempotent per
// comparison (ProcessedComparison markers), so at-least-once delivery is
// sufficient; no publisher-confirm handshake is required.
func (q *RabbitQueue) Enqueue(ctx context.Context, target string, payload []byte) error {
	if err := q.ensureQueue(target); err != nil {
		return err
	}
	err := q.ch.PublishWithContext(ctx, "", target, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("queue: publish to %s: %w", target, err)
	}
	return nil
}

// Close tears down the channel and connection.
func (q *RabbitQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Consume returns a delivery channel for target, declaring the queue first.
// Used by the rating-worker entrypoint to drive RatingEngine.Run on each job.
func (q *RabbitQueue) Consume(ctx context.Context, target string) (<-chan amqp.Delivery, error) {
	if err := q.ensureQueue(target); err != nil {
		return nil, err
	}
	deliveries, err := q.ch.ConsumeWithContext(ctx, target, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: consume %s: %w", target, err)
	}
	return deliveries, nil
}
