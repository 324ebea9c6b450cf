package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"invigilens/internal/metrics"
	"invigilens/internal/queue"
)

const publishTimeout = 2 * time.Second

// Publisher receives lifecycle events. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service enforces the alert state machine on top of a Store.
type Service struct {
	store   Store
	events  Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a service backed by store. events may be nil.
func NewService(store Store, events Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		events:  events,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the producer fields, applies defaults and stores a new
// pending alert.
func (s *Service) Create(ctx context.Context, in NewAlert) (Alert, error) {
	if in.ViolationType == "" {
		return Alert{}, fmt.Errorf("%w: violationType is required", ErrValidation)
	}
	if !in.ViolationType.Valid() {
		return Alert{}, fmt.Errorf("%w: %q is not a valid violationType", ErrValidation, in.ViolationType)
	}
	if in.Confidence == nil {
		return Alert{}, fmt.Errorf("%w: confidence is required", ErrValidation)
	}
	studentID := in.StudentID
	if studentID == "" {
		studentID = UnknownStudent
	}

	a, err := s.store.Insert(ctx, Alert{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		ViolationType: in.ViolationType,
		Confidence:    *in.Confidence,
		Timestamp:     s.now(),
		EvidencePath:  in.EvidencePath,
		Status:        StatusPending,
	})
	if err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}

	s.metrics.AlertsCreated.WithLabelValues(string(a.ViolationType)).Inc()
	s.publish(ctx, Event{Type: EventCreated, At: s.now(), Alert: &a})
	return a, nil
}

// List returns alerts matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Alert, error) {
	res, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find alerts: %w", err)
	}
	return res, nil
}

// Get returns one alert or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Alert, error) {
	return s.store.FindByID(ctx, id)
}

// UpdateStatus moves an alert to status. A nil status keeps the current one
// and performs no write. Any transition between valid statuses is allowed.
func (s *Service) UpdateStatus(ctx context.Context, id string, status *Status) (Alert, error) {
	if status != nil && !status.Valid() {
		return Alert{}, fmt.Errorf("%w: %q is not a valid status", ErrValidation, *status)
	}
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	if status == nil {
		return current, nil
	}

	updated, err := s.store.SetStatus(ctx, id, *status)
	if err != nil {
		return Alert{}, err
	}

	s.metrics.AlertStatusChanges.WithLabelValues(string(updated.Status)).Inc()
	s.publish(ctx, Event{
		Type:           EventStatusChanged,
		At:             s.now(),
		Alert:          &updated,
		PreviousStatus: current.Status,
	})
	return updated, nil
}

// DeleteAll removes every alert. Evidence files are left untouched.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete alerts: %w", err)
	}
	s.metrics.AlertsCleared.Add(float64(n))
	s.publish(ctx, Event{Type: EventCleared, At: s.now(), Deleted: n})
	return n, nil
}

// Ping reports store health.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publish is best-effort: a failed publish is logged and never fails the
// operation that produced the event.
func (s *Service) publish(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	msg, err := evt.Message()
	if err != nil {
		s.logger.Warn("encode lifecycle event", "type", evt.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, msg); err != nil {
		s.logger.Warn("queue publish failed", "type", evt.Type, "error", err)
	}
}
