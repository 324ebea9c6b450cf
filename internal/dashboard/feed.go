package dashboard

import (
	"context"
	"sync"
	"time"

	"invigilens/internal/alerts"
)

// NoRecentAlerts is shown when the feed has nothing above the clear floor.
const NoRecentAlerts = "No recent alerts."

// AlertLister lists alerts, optionally filtered by status.
type AlertLister interface {
	List(ctx context.Context, status alerts.Status) ([]alerts.Alert, error)
}

// FeedView is the result of one poll.
type FeedView struct {
	Alerts      []alerts.Alert
	LastCleared time.Time
	FetchedAt   time.Time
}

// Empty reports whether nothing is visible.
func (v FeedView) Empty() bool { return len(v.Alerts) == 0 }

// Message is the placeholder for an empty feed, or "".
func (v FeedView) Message() string {
	if v.Empty() {
		return NoRecentAlerts
	}
	return ""
}

// Feed is the recent-alerts view. Every Refresh is a full reload; alerts at
// or before the local clear floor are hidden.
type Feed struct {
	api   AlertLister
	state *StateFile
	now   func() time.Time

	mu          sync.Mutex
	lastCleared time.Time
	last        FeedView
}

// NewFeed loads the persisted clear floor from state.
func NewFeed(api AlertLister, state *StateFile) (*Feed, error) {
	if state == nil {
		state = NewStateFile("")
	}
	st, err := state.Load()
	if err != nil {
		return nil, err
	}
	return &Feed{api: api, state: state, now: time.Now, lastCleared: st.LastCleared}, nil
}

// Refresh fetches all alerts and applies the clear floor.
func (f *Feed) Refresh(ctx context.Context) (FeedView, error) {
	list, err := f.api.List(ctx, "")
	if err != nil {
		return FeedView{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = FeedView{
		Alerts:      VisibleSince(list, f.lastCleared),
		LastCleared: f.lastCleared,
		FetchedAt:   f.now(),
	}
	return f.last, nil
}

// Last returns the most recent view, re-filtered against the current floor.
func (f *Feed) Last() FeedView {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.last
	v.Alerts = VisibleSince(v.Alerts, f.lastCleared)
	v.LastCleared = f.lastCleared
	return v
}

// ClearNotifications raises the clear floor to now and persists it. It never
// contacts the server.
func (f *Feed) ClearNotifications() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := f.now()
	if err := f.state.Save(ViewState{LastCleared: at}); err != nil {
		return err
	}
	f.lastCleared = at
	return nil
}

// LastCleared returns the current floor; zero means nothing was cleared.
func (f *Feed) LastCleared() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCleared
}

// VisibleSince drops alerts with timestamp <= floor. A zero floor keeps all.
func VisibleSince(list []alerts.Alert, floor time.Time) []alerts.Alert {
	out := make([]alerts.Alert, 0, len(list))
	for _, a := range list {
		if floor.IsZero() || a.Timestamp.After(floor) {
			out = append(out, a)
		}
	}
	return out
}
