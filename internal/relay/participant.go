package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrParticipantGone is returned by Receive once the participant has left.
var ErrParticipantGone = errors.New("participant left the hub")

// Participant is one connected endpoint. It owns two bounded outbound lanes.
// The lanes are never closed; departure is signalled through done so that a
// broadcast racing a disconnect can still enqueue safely.
type Participant struct {
	ID string

	frames  chan Outbound
	control chan Outbound

	done      chan struct{}
	closeOnce sync.Once
}

func newParticipant(frameBuf, controlBuf int) *Participant {
	return &Participant{
		ID:      uuid.NewString(),
		frames:  make(chan Outbound, frameBuf),
		control: make(chan Outbound, controlBuf),
		done:    make(chan struct{}),
	}
}

// Done is closed when the participant leaves the hub.
func (p *Participant) Done() <-chan struct{} { return p.done }

// Receive returns the next outbound message, control lane first.
func (p *Participant) Receive(ctx context.Context) (Outbound, error) {
	select {
	case msg := <-p.control:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.control:
		return msg, nil
	case msg := <-p.frames:
		return msg, nil
	case <-p.done:
		return Outbound{}, ErrParticipantGone
	case <-ctx.Done():
		return Outbound{}, ctx.Err()
	}
}

// offer enqueues without blocking and reports whether the lane had room.
func (p *Participant) offer(lane Lane, msg Outbound) bool {
	ch := p.frames
	if lane == LaneControl {
		ch = p.control
	}
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (p *Participant) close() {
	p.closeOnce.Do(func() { close(p.done) })
}
