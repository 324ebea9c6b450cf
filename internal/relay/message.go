package relay

import (
	"encoding/json"
)

// Event names on the relay protocol.
const (
	// EventVideoFrame is sent by the capture source with one encoded frame.
	EventVideoFrame = "video_frame"
	// EventLiveStream carries a relayed frame to the other participants.
	EventLiveStream = "live_stream"
	// EventSetMonitoring toggles detection on the capture source.
	EventSetMonitoring = "set_monitoring"
	// EventCameraControl starts or stops the camera.
	EventCameraControl = "camera_control"
)

// Envelope is the JSON shape of every text message on the relay.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MonitoringState is the set_monitoring payload.
type MonitoringState struct {
	Active bool `json:"active"`
}

// CameraAction is the camera_control action.
type CameraAction string

const (
	CameraStart CameraAction = "start"
	CameraStop  CameraAction = "stop"
)

// CameraControl is the camera_control payload.
type CameraControl struct {
	Action CameraAction `json:"action"`
}

// Lane selects which outbound queue of a participant a message uses.
type Lane int

const (
	LaneFrame Lane = iota
	LaneControl
)

func (l Lane) String() string {
	if l == LaneControl {
		return "control"
	}
	return "frame"
}

// Outbound is a message ready to be written to one participant.
type Outbound struct {
	Binary bool
	Data   []byte
}

// encodeEnvelope builds the wire form without re-validating data, so frame
// payloads are copied once and relayed exactly as received.
func encodeEnvelope(event string, data json.RawMessage) []byte {
	name, _ := json.Marshal(event)
	if len(data) == 0 {
		buf := make([]byte, 0, len(name)+11)
		buf = append(buf, `{"event":`...)
		buf = append(buf, name...)
		return append(buf, '}')
	}
	buf := make([]byte, 0, len(name)+len(data)+19)
	buf = append(buf, `{"event":`...)
	buf = append(buf, name...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	return append(buf, '}')
}
