// Package notify delivers ledger notifications outside the transactional path.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

// Event is one notification addressed to an account holder.
type Event struct {
	AccountID     uuid.UUID  `json:"account_id"`
	Kind          string     `json:"kind"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Reference     string     `json:"reference,omitempty"`
	Points        int64      `json:"points,omitempty"`
	Message       string     `json:"message"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Sink performs the actual delivery of an event.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

const defaultQueueSize = 256

// Dispatcher hands events to a Sink from a single background goroutine.
// A full queue drops the event instead of waiting.
type Dispatcher struct {
	sink     Sink
	queue    chan Event
	timeout  time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(sink Sink, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, queueSize),
		timeout: 5 * time.Second,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Notify enqueues e. It never blocks and never returns an error.
func (d *Dispatcher) Notify(_ context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case <-d.stopCh:
		observability.IncrementNotification("dropped")
		return
	default:
	}
	select {
	case d.queue <- e:
		observability.IncrementNotification("queued")
	default:
		observability.IncrementNotification("dropped")
		zap.L().Warn("notification queue full, dropping event",
			zap.String("account_id", e.AccountID.String()),
			zap.String("kind", e.Kind),
		)
	}
}

// Start blocks, delivering events until ctx is done or Stop is called.
// Events still queued at shutdown are delivered before it returns.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.doneCh)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.stopCh:
			d.drain()
			return
		case e := <-d.queue:
			d.deliver(e)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, e); err != nil {
		observability.IncrementNotification("failed")
		zap.L().Warn("notification delivery failed",
			zap.String("account_id", e.AccountID.String()),
			zap.String("kind", e.Kind),
			zap.Error(err),
		)
		return
	}
	observability.IncrementNotification("delivered")
}

// Stop signals the loop to finish and waits for queued events to flush.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	<-d.doneCh
}

// Run starts the dispatcher in a goroutine and returns a stop function.
func (d *Dispatcher) Run(ctx context.Context) func() {
	go d.Start(ctx)
	return d.Stop
}

// Publisher is the subset of a Redis client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes JSON events on a Redis channel for the realtime gateway to fan out.
type RedisSink struct {
	client  Publisher
	channel string
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogSink writes events to the global logger. Used when Redis is not configured.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, e Event) error {
	zap.L().Info("notification",
		zap.String("account_id", e.AccountID.String()),
		zap.String("kind", e.Kind),
		zap.String("reference", e.Reference),
		zap.Int64("points", e.Points),
		zap.String("message", e.Message),
	)
	return nil
}
