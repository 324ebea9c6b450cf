// Package audit consumes alert lifecycle events from the queue, logs them as
// an audit trail and records review metrics.
package audit

import (
	"context"
	"log/slog"
	"time"

	"invigilens/internal/alerts"
	"invigilens/internal/metrics"
	"invigilens/internal/queue"
)

// Consumer drains a lifecycle queue.
type Consumer struct {
	queue   queue.Queue
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewConsumer builds a consumer. m and logger may be nil.
func NewConsumer(q queue.Queue, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{queue: q, metrics: m, logger: logger.With("component", "audit"), now: time.Now}
}

// Run blocks until ctx is done or the queue stops delivering.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.queue.Consume(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("audit consumer started")
	for msg := range messages {
		c.Handle(msg)
	}
	c.logger.Info("audit consumer stopped")
	return nil
}

// Handle records one message. Undecodable messages are logged and skipped.
func (c *Consumer) Handle(msg queue.Message) {
	evt, err := alerts.DecodeEvent(msg)
	if err != nil {
		c.logger.Warn("undecodable lifecycle event", "type", msg.Type, "error", err)
		return
	}
	c.metrics.AuditEvents.WithLabelValues(evt.Type).Inc()

	switch evt.Type {
	case alerts.EventCreated:
		if evt.Alert == nil {
			return
		}
		c.logger.Info("alert created",
			"id", evt.Alert.ID,
			"student", evt.Alert.StudentID,
			"violation", evt.Alert.ViolationType,
			"confidence", evt.Alert.Confidence,
		)
	case alerts.EventStatusChanged:
		if evt.Alert == nil {
			return
		}
		c.logger.Info("alert reviewed",
			"id", evt.Alert.ID,
			"from", evt.PreviousStatus,
			"to", evt.Alert.Status,
		)
		if evt.PreviousStatus == alerts.StatusPending && evt.Alert.Status != alerts.StatusPending {
			at := evt.At
			if at.IsZero() {
				at = c.now()
			}
			if d := at.Sub(evt.Alert.Timestamp); d >= 0 {
				c.metrics.ReviewLatency.Observe(d.Seconds())
			}
		}
	case alerts.EventCleared:
		c.logger.Info("alert history cleared", "deleted", evt.Deleted)
	default:
		c.logger.Debug("ignoring lifecycle event", "type", evt.Type)
	}
}
