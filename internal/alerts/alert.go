package alerts

import (
	"errors"
	"time"
)

// ViolationType is the detector's classification of an alert.
type ViolationType string

const (
	ViolationGivingObject  ViolationType = "Giving object"
	ViolationGivingSignal  ViolationType = "Giving signal"
	ViolationLookingFriend ViolationType = "Looking Friend"
	ViolationMoving        ViolationType = "Moving"
	ViolationNormal        ViolationType = "Normal"
	ViolationUsingPhone    ViolationType = "Using Phone"
)

// ViolationTypes lists every accepted violation type.
var ViolationTypes = []ViolationType{
	ViolationGivingObject,
	ViolationGivingSignal,
	ViolationLookingFriend,
	ViolationMoving,
	ViolationNormal,
	ViolationUsingPhone,
}

// Valid reports whether v is one of ViolationTypes.
func (v ViolationType) Valid() bool {
	for _, t := range ViolationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Status is the review state of an alert.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Statuses lists every accepted status.
var Statuses = []Status{StatusPending, StatusVerified, StatusRejected}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// UnknownStudent is stored when the producer does not identify the student.
const UnknownStudent = "Unknown"

// Alert is a persisted violation record.
type Alert struct {
	ID            string        `json:"id"`
	StudentID     string        `json:"studentId"`
	ViolationType ViolationType `json:"violationType"`
	Confidence    float64       `json:"confidence"`
	Timestamp     time.Time     `json:"timestamp"`
	EvidencePath  string        `json:"evidencePath,omitempty"`
	Status        Status        `json:"status"`
}

// NewAlert carries the producer-supplied fields of an alert. Pointers mark
// fields whose absence must be distinguishable from a zero value.
type NewAlert struct {
	StudentID     string        `json:"studentId"`
	ViolationType ViolationType `json:"violationType"`
	Confidence    *float64      `json:"confidence"`
	EvidencePath  string        `json:"evidencePath"`
}

// Filter selects alerts in Find. A zero Filter matches everything.
type Filter struct {
	Status Status
}

// Matches reports whether a satisfies the filter.
func (f Filter) Matches(a Alert) bool {
	return f.Status == "" || a.Status == f.Status
}

var (
	// ErrValidation is wrapped by errors caused by bad caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when no alert has the requested id.
	ErrNotFound = errors.New("alert not found")
)
