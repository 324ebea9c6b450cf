// Package relay implements the realtime hub that fans out video frames and
// control messages between the capture source and dashboard viewers.
//
// Fan-out policy:
//
//	video_frame      -> every participant except the sender, as live_stream
//	binary frame     -> every participant except the sender
//	set_monitoring   -> every participant, sender included
//	camera_control   -> every participant, sender included
//
// Delivery is at-most-once. Each participant has a frame lane and a control
// lane; a full lane drops the message for that participant only.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"invigilens/internal/metrics"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxMessageBytes = 100_000_000
	DefaultFrameBuffer     = 8
	DefaultControlBuffer   = 32
)

// Config sizes the hub's limits and per-participant lanes.
type Config struct {
	MaxMessageBytes int64
	FrameBuffer     int
	ControlBuffer   int
}

func (c Config) withDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = DefaultFrameBuffer
	}
	if c.ControlBuffer <= 0 {
		c.ControlBuffer = DefaultControlBuffer
	}
	return c
}

// Hub owns the participant registry and routes inbound messages.
type Hub struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu           sync.RWMutex
	participants map[*Participant]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:          cfg.withDefaults(),
		metrics:      m,
		logger:       logger,
		participants: make(map[*Participant]struct{}),
	}
}

// MaxMessageBytes is the largest message the hub accepts or delivers.
func (h *Hub) MaxMessageBytes() int64 { return h.cfg.MaxMessageBytes }

// Join registers a new participant.
func (h *Hub) Join() *Participant {
	p := newParticipant(h.cfg.FrameBuffer, h.cfg.ControlBuffer)
	h.mu.Lock()
	h.participants[p] = struct{}{}
	n := len(h.participants)
	h.mu.Unlock()

	h.metrics.RelayParticipants.Inc()
	h.logger.Info("participant connected", "participant", p.ID, "participants", n)
	return p
}

// Leave removes p from the registry. Calling it more than once is harmless.
func (h *Hub) Leave(p *Participant) {
	h.mu.Lock()
	_, ok := h.participants[p]
	delete(h.participants, p)
	n := len(h.participants)
	h.mu.Unlock()

	p.close()
	if ok {
		h.metrics.RelayParticipants.Dec()
		h.logger.Info("participant disconnected", "participant", p.ID, "participants", n)
	}
}

// Len returns the number of connected participants.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.participants)
}

// Handle routes one envelope received from p and returns the number of
// participants it was queued for. Unknown events are dropped. Payloads are
// never inspected.
func (h *Hub) Handle(from *Participant, env Envelope) int {
	h.metrics.RelayInbound.WithLabelValues(inboundLabel(env.Event)).Inc()
	switch env.Event {
	case EventVideoFrame:
		msg := Outbound{Data: encodeEnvelope(EventLiveStream, env.Data)}
		return h.fanout(from, LaneFrame, msg)
	case EventSetMonitoring, EventCameraControl:
		msg := Outbound{Data: encodeEnvelope(env.Event, env.Data)}
		n := h.fanout(nil, LaneControl, msg)
		h.logger.Info("control relayed", "event", env.Event, "from", participantID(from), "data", string(env.Data), "recipients", n)
		return n
	default:
		h.logger.Debug("unknown relay event dropped", "event", env.Event, "from", participantID(from))
		return 0
	}
}

// HandleRaw decodes a text message and routes it. Messages that are not a
// JSON envelope are dropped.
func (h *Hub) HandleRaw(from *Participant, data []byte) int {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.metrics.RelayInbound.WithLabelValues("invalid").Inc()
		h.logger.Debug("undecodable relay message dropped", "from", participantID(from), "bytes", len(data), "error", err)
		return 0
	}
	return h.Handle(from, env)
}

// RelayFrame forwards a binary frame to everyone but the sender.
func (h *Hub) RelayFrame(from *Participant, frame []byte) int {
	h.metrics.RelayInbound.WithLabelValues("binary_frame").Inc()
	return h.fanout(from, LaneFrame, Outbound{Binary: true, Data: frame})
}

// fanout offers msg to every participant except skip. A slow, oversized or
// departed recipient only loses its own copy.
func (h *Hub) fanout(skip *Participant, lane Lane, msg Outbound) int {
	h.mu.RLock()
	targets := make([]*Participant, 0, len(h.participants))
	for p := range h.participants {
		if p != skip {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	laneName := lane.String()
	if int64(len(msg.Data)) > h.cfg.MaxMessageBytes {
		h.metrics.RelayDropped.WithLabelValues(laneName, metrics.ReasonOversized).Add(float64(len(targets)))
		h.logger.Warn("oversized relay message dropped", "bytes", len(msg.Data), "limit", h.cfg.MaxMessageBytes)
		return 0
	}

	delivered := 0
	for _, p := range targets {
		if p.offer(lane, msg) {
			delivered++
			continue
		}
		h.metrics.RelayDropped.WithLabelValues(laneName, metrics.ReasonLaneFull).Inc()
		h.logger.Debug("relay message dropped", "participant", p.ID, "lane", laneName)
	}
	h.metrics.RelayDelivered.WithLabelValues(laneName).Add(float64(delivered))
	return delivered
}

func inboundLabel(event string) string {
	switch event {
	case EventVideoFrame, EventSetMonitoring, EventCameraControl:
		return event
	}
	return "unknown"
}

func participantID(p *Participant) string {
	if p == nil {
		return ""
	}
	return p.ID
}
