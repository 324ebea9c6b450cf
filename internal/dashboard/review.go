package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"invigilens/internal/alerts"
)

// NoPendingAlerts is shown when the review queue is empty.
const NoPendingAlerts = "No pending alerts to review."

var (
	// ErrUnknownCard is returned when deciding on an alert not in the view.
	ErrUnknownCard = errors.New("alert is not in the review list")
	// ErrDecisionInFlight is returned when a card already has a request out.
	ErrDecisionInFlight = errors.New("a decision for this alert is already in flight")
)

// Decider is the part of the Alert API the review workflow needs.
type Decider interface {
	AlertLister
	UpdateStatus(ctx context.Context, id string, status alerts.Status) (alerts.Alert, error)
}

// Card is one pending alert in the review view.
type Card struct {
	Alert    alerts.Alert
	InFlight bool
}

// Review holds the pending-alerts view. A card leaves the view only after
// the server confirmed the decision.
type Review struct {
	api Decider

	mu    sync.Mutex
	cards []Card
}

// NewReview creates an empty review view.
func NewReview(api Decider) *Review {
	return &Review{api: api}
}

// Load replaces the view with the server's pending alerts.
func (r *Review) Load(ctx context.Context) error {
	list, err := r.api.List(ctx, alerts.StatusPending)
	if err != nil {
		return err
	}
	cards := make([]Card, 0, len(list))
	for _, a := range list {
		cards = append(cards, Card{Alert: a})
	}
	r.mu.Lock()
	r.cards = cards
	r.mu.Unlock()
	return nil
}

// Cards returns a copy of the current view.
func (r *Review) Cards() []Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Card, len(r.cards))
	copy(out, r.cards)
	return out
}

// Message is the placeholder for an empty view, or "".
func (r *Review) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cards) == 0 {
		return NoPendingAlerts
	}
	return ""
}

// Decide sends verified or rejected for id. The card is marked in flight
// while the request runs, removed on success and restored on failure.
func (r *Review) Decide(ctx context.Context, id string, status alerts.Status) (alerts.Alert, error) {
	if status != alerts.StatusVerified && status != alerts.StatusRejected {
		return alerts.Alert{}, fmt.Errorf("%w: decision must be verified or rejected, got %q", alerts.ErrValidation, status)
	}

	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return alerts.Alert{}, ErrUnknownCard
	}
	if r.cards[i].InFlight {
		r.mu.Unlock()
		return alerts.Alert{}, ErrDecisionInFlight
	}
	r.cards[i].InFlight = true
	r.mu.Unlock()

	updated, err := r.api.UpdateStatus(ctx, id, status)

	r.mu.Lock()
	defer r.mu.Unlock()
	// The view may have been reloaded while the request was out.
	i = r.indexLocked(id)
	if err != nil {
		if i >= 0 {
			r.cards[i].InFlight = false
		}
		return alerts.Alert{}, err
	}
	if i >= 0 {
		r.cards = append(r.cards[:i], r.cards[i+1:]...)
	}
	return updated, nil
}

func (r *Review) indexLocked(id string) int {
	for i, c := range r.cards {
		if c.Alert.ID == id {
			return i
		}
	}
	return -1
}
