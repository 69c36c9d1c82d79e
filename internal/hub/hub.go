// Package hub publishes terminal sign-in events for telemetry. Publishing
// is fire-and-forget: the sign-in path never blocks on, or fails because
// of, the hub.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// Outcome values carried on terminal events.
const (
	OutcomeSignedIn   = "signed_in"
	OutcomeFailed     = "failed"
	OutcomeCancelled  = "cancelled"
	OutcomeSuperseded = "superseded"
)

// TerminalEvent describes how one sign-in attempt ended.
type TerminalEvent struct {
	CorrelationID string
	AttemptID     uint64
	Method        string
	Outcome       string
	Reason        string
	At            time.Time
}

// Sink consumes published events. Consume errors are the sink's problem;
// the hub never sees them.
type Sink interface {
	Consume(ctx context.Context, event TerminalEvent)
}

// SlogSink logs every terminal event.
type SlogSink struct{}

func (SlogSink) Consume(ctx context.Context, event TerminalEvent) {
	slogctx.Info(ctx, "Sign-in attempt finished",
		slog.String("correlation_id", event.CorrelationID),
		slog.Uint64("attempt_id", event.AttemptID),
		slog.String("method", event.Method),
		slog.String("outcome", event.Outcome),
		slog.String("reason", event.Reason),
	)
}

// Hub funnels events through a buffered channel into a single consumer
// goroutine. Publish drops when the buffer is full rather than blocking.
type Hub struct {
	events  chan TerminalEvent
	sink    Sink
	dropped atomic.Uint64

	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

func New(sink Sink, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	h := &Hub{
		events: make(chan TerminalEvent, buffer),
		sink:   sink,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.consume()

	return h
}

func (h *Hub) consume() {
	defer close(h.done)
	ctx := context.Background()
	for {
		select {
		case event := <-h.events:
			h.sink.Consume(ctx, event)
		case <-h.quit:
			// drain what is already buffered
			for {
				select {
				case event := <-h.events:
					h.sink.Consume(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// Publish enqueues the event without blocking. Events published after
// Close, or while the buffer is full, are counted as dropped.
func (h *Hub) Publish(event TerminalEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	select {
	case <-h.quit:
		h.dropped.Add(1)
	default:
		select {
		case h.events <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close stops the consumer after draining buffered events.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
	<-h.done
}
