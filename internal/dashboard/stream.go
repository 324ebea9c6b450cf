package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"invigilens/internal/relay"
)

// StreamState is a snapshot of the live view.
type StreamState struct {
	Online    bool
	Frame     []byte
	Frames    uint64
	UpdatedAt time.Time
}

// Stream keeps the latest relayed frame. Nothing is buffered beyond it.
type Stream struct {
	now func() time.Time

	mu    sync.Mutex
	state StreamState
}

// NewStream returns an offline stream.
func NewStream() *Stream {
	return &Stream{now: time.Now}
}

// Connected marks the stream online and asks the capture side to start
// the camera.
func (s *Stream) Connected(e Emitter) error {
	s.mu.Lock()
	s.state = StreamState{Online: true}
	s.mu.Unlock()
	return e.Emit(relay.EventCameraControl, relay.CameraControl{Action: relay.CameraStart})
}

// Disconnected drops the frame and goes back to the offline state.
func (s *Stream) Disconnected() {
	s.mu.Lock()
	s.state = StreamState{}
	s.mu.Unlock()
}

// Receive applies one relay message carrying a frame. Other messages are
// ignored.
func (s *Stream) Receive(msg relay.Message) {
	if !msg.IsFrame() {
		return
	}
	frame := msg.Frame
	if frame == nil {
		frame = framePayload(msg.Envelope.Data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Frame = frame
	s.state.Frames++
	s.state.UpdatedAt = s.now()
}

// Snapshot returns the current state.
func (s *Stream) Snapshot() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// framePayload unwraps a JSON string payload such as a base64 image and
// returns other payloads unchanged.
func framePayload(data json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return []byte(s)
	}
	return []byte(data)
}
