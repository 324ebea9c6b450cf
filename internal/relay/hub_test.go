package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"invigilens/internal/metrics"
)

func newTestHub(t *testing.T, cfg Config) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(nil)
	return NewHub(cfg, m, nil), m
}

// pending drains everything currently queued for p.
func pending(p *Participant) []Outbound {
	var out []Outbound
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		msg, err := p.Receive(ctx)
		cancel()
		if err != nil {
			return out
		}
		out = append(out, msg)
	}
}

func decode(t *testing.T, msg Outbound) Envelope {
	t.Helper()
	require.False(t, msg.Binary)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	return env
}

func TestVideoFrameSkipsSender(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, _ := newTestHub(t, Config{})
	a, b, c := hub.Join(), hub.Join(), hub.Join()

	n := hub.Handle(a, Envelope{Event: EventVideoFrame, Data: json.RawMessage(`"/9j/4AAQSkZJRg=="`)})
	assert.Equal(t, 2, n)

	assert.Empty(t, pending(a), "sender must not receive its own frame")
	for _, p := range []*Participant{b, c} {
		got := pending(p)
		require.Len(t, got, 1)
		env := decode(t, got[0])
		assert.Equal(t, EventLiveStream, env.Event)
		assert.JSONEq(t, `"/9j/4AAQSkZJRg=="`, string(env.Data))
	}
}

func TestControlReachesEveryoneIncludingSender(t *testing.T) {
	hub, _ := newTestHub(t, Config{})
	a, b, c := hub.Join(), hub.Join(), hub.Join()

	for _, event := range []string{EventSetMonitoring, EventCameraControl} {
		payload := json.RawMessage(`{"active":true}`)
		if event == EventCameraControl {
			payload = json.RawMessage(`{"action":"start"}`)
		}
		n := hub.Handle(b, Envelope{Event: event, Data: payload})
		assert.Equal(t, 3, n)
		for _, p := range []*Participant{a, b, c} {
			got := pending(p)
			require.Len(t, got, 1, event)
			env := decode(t, got[0])
			assert.Equal(t, event, env.Event)
			assert.JSONEq(t, string(payload), string(env.Data))
		}
	}
}

func TestMalformedPayloadRelayedAsIs(t *testing.T) {
	hub, _ := newTestHub(t, Config{})
	a, b := hub.Join(), hub.Join()

	hub.HandleRaw(a, []byte(`{"event":"set_monitoring","data":{"active":"maybe","extra":[1,2]}}`))
	got := pending(b)
	require.Len(t, got, 1)
	env := decode(t, got[0])
	assert.JSONEq(t, `{"active":"maybe","extra":[1,2]}`, string(env.Data))
	require.Len(t, pending(a), 1)
}

func TestUnknownAndUndecodableMessagesDropped(t *testing.T) {
	hub, m := newTestHub(t, Config{})
	a, b := hub.Join(), hub.Join()

	assert.Zero(t, hub.Handle(a, Envelope{Event: "shutdown"}))
	assert.Zero(t, hub.HandleRaw(a, []byte("not json")))
	assert.Empty(t, pending(b))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayInbound.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayInbound.WithLabelValues("invalid")))
}

func TestBinaryFrameSkipsSender(t *testing.T) {
	hub, _ := newTestHub(t, Config{})
	a, b := hub.Join(), hub.Join()

	frame := []byte{0xff, 0xd8, 0xff, 0xe0}
	assert.Equal(t, 1, hub.RelayFrame(a, frame))
	assert.Empty(t, pending(a))
	got := pending(b)
	require.Len(t, got, 1)
	assert.True(t, got[0].Binary)
	assert.Equal(t, frame, got[0].Data)
}

func TestLeaveMidFanoutStillReachesOthers(t *testing.T) {
	hub, m := newTestHub(t, Config{})
	a, b, c := hub.Join(), hub.Join(), hub.Join()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RelayParticipants))

	hub.Leave(b)
	hub.Leave(b)
	assert.Equal(t, 2, hub.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayParticipants))

	n := hub.Handle(a, Envelope{Event: EventVideoFrame, Data: json.RawMessage(`"frame"`)})
	assert.Equal(t, 1, n)
	require.Len(t, pending(c), 1)

	_, err := b.Receive(context.Background())
	assert.ErrorIs(t, err, ErrParticipantGone)
	assert.False(t, b.offer(LaneFrame, Outbound{Data: []byte("x")}))
}

func TestFullFrameLaneDropsWithoutBlockingControl(t *testing.T) {
	hub, m := newTestHub(t, Config{FrameBuffer: 2, ControlBuffer: 2})
	src, viewer := hub.Join(), hub.Join()

	for i := 0; i < 5; i++ {
		hub.RelayFrame(src, []byte{byte(i)})
	}
	hub.Handle(src, Envelope{Event: EventSetMonitoring, Data: json.RawMessage(`{"active":false}`)})

	got := pending(viewer)
	require.Len(t, got, 3)
	// Control jumps ahead of queued frames.
	assert.Equal(t, EventSetMonitoring, decode(t, got[0]).Event)
	assert.Equal(t, []byte{0}, got[1].Data)
	assert.Equal(t, []byte{1}, got[2].Data)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RelayDropped.WithLabelValues("frame", metrics.ReasonLaneFull)))
}

func TestOversizedMessageDropped(t *testing.T) {
	hub, m := newTestHub(t, Config{MaxMessageBytes: 16})
	a, b, c := hub.Join(), hub.Join(), hub.Join()

	assert.Zero(t, hub.RelayFrame(a, make([]byte, 17)))
	assert.Empty(t, pending(b))
	assert.Empty(t, pending(c))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayDropped.WithLabelValues("frame", metrics.ReasonOversized)))

	assert.Equal(t, 2, hub.RelayFrame(a, make([]byte, 16)))
}

func TestHubsAreIndependent(t *testing.T) {
	h1, _ := newTestHub(t, Config{})
	h2, _ := newTestHub(t, Config{})
	a, b := h1.Join(), h2.Join()

	h1.Handle(a, Envelope{Event: EventCameraControl, Data: json.RawMessage(`{"action":"stop"}`)})
	assert.Len(t, pending(a), 1)
	assert.Empty(t, pending(b))
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, _ := newTestHub(t, Config{FrameBuffer: 4})
	src := hub.Join()
	stable := hub.Join()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := hub.Join()
				hub.Leave(p)
			}
		}()
	}
	for i := 0; i < 500; i++ {
		hub.RelayFrame(src, []byte("frame"))
		hub.Handle(src, Envelope{Event: EventSetMonitoring, Data: json.RawMessage(`{"active":true}`)})
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 2, hub.Len())
	got := pending(stable)
	assert.NotEmpty(t, got)
}

func TestEncodeEnvelope(t *testing.T) {
	assert.Equal(t, `{"event":"camera_control"}`, string(encodeEnvelope(EventCameraControl, nil)))
	assert.Equal(t, `{"event":"live_stream","data":"abc"}`, string(encodeEnvelope(EventLiveStream, json.RawMessage(`"abc"`))))
}
