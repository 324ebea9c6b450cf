package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"invigilens/internal/queue"
)

// ErrOutboxFull is returned when the outbox buffer has no room.
var ErrOutboxFull = errors.New("lifecycle outbox full")

const (
	defaultOutboxSize = 256
	outboxDrainWait   = 2 * time.Second
)

// Outbox hands lifecycle events to a Publisher from its own goroutine, so
// request handlers never wait on the queue. It satisfies Publisher.
type Outbox struct {
	next      Publisher
	ch        chan queue.Message
	timeout   time.Duration
	drainWait time.Duration
	logger    *slog.Logger
}

// NewOutbox buffers up to size events for next. Run must be started for
// anything to be delivered.
func NewOutbox(next Publisher, size int, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		next:      next,
		ch:        make(chan queue.Message, size),
		timeout:   publishTimeout,
		drainWait: outboxDrainWait,
		logger:    logger,
	}
}

// Publish enqueues msg without blocking.
func (o *Outbox) Publish(_ context.Context, msg queue.Message) error {
	select {
	case o.ch <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Run delivers buffered events until ctx is done, then makes one bounded
// attempt to flush what is left.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-o.ch:
			if ctx.Err() != nil {
				o.drain(&msg)
				return nil
			}
			o.send(ctx, msg)
		case <-ctx.Done():
			o.drain(nil)
			return nil
		}
	}
}

// drain sends first, if any, and everything still buffered within drainWait.
func (o *Outbox) drain(first *queue.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), o.drainWait)
	defer cancel()
	deliver := func(msg queue.Message) {
		if ctx.Err() != nil {
			o.logger.Warn("lifecycle event dropped at shutdown", "type", msg.Type)
			return
		}
		o.send(ctx, msg)
	}
	if first != nil {
		deliver(*first)
	}
	for {
		select {
		case msg := <-o.ch:
			deliver(msg)
		default:
			return
		}
	}
}

func (o *Outbox) send(ctx context.Context, msg queue.Message) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.next.Publish(ctx, msg); err != nil {
		o.logger.Warn("queue publish failed", "type", msg.Type, "error", err)
	}
}
