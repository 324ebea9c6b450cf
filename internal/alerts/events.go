package alerts

import (
	"encoding/json"
	"time"

	"invigilens/internal/queue"
)

// Lifecycle event types published by the service.
const (
	EventCreated       = "alert.created"
	EventStatusChanged = "alert.status_changed"
	EventCleared       = "alert.cleared"
)

// Event describes one change to the alert collection.
type Event struct {
	Type           string    `json:"type"`
	At             time.Time `json:"at"`
	Alert          *Alert    `json:"alert,omitempty"`
	PreviousStatus Status    `json:"previousStatus,omitempty"`
	Deleted        int64     `json:"deleted,omitempty"`
}

// Message encodes the event for the lifecycle queue.
func (e Event) Message() (queue.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{Type: e.Type, Body: body}, nil
}

// DecodeEvent is the inverse of Event.Message.
func DecodeEvent(msg queue.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		return Event{}, err
	}
	if e.Type == "" {
		e.Type = msg.Type
	}
	return e, nil
}
