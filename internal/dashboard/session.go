package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"invigilens/internal/relay"
)

// ErrOffline is returned when a relay action is requested without a
// connection.
var ErrOffline = errors.New("relay is not connected")

// SessionConfig configures a Session.
type SessionConfig struct {
	API          *Client
	RelayURL     string
	State        *StateFile
	PollInterval time.Duration
	// RedialDelay is the wait between relay connection attempts.
	RedialDelay time.Duration
	Logger      *slog.Logger
	// OnFeed is called after every successful poll.
	OnFeed func(FeedView)
	// OnStream is called when the stream goes on or offline.
	OnStream func(online bool)
}

// Session is one operator's dashboard: the polled feed plus the relay
// connection driving the stream and monitoring views.
type Session struct {
	Feed    *Feed
	Review  *Review
	Monitor *Monitor
	Stream  *Stream

	cfg    SessionConfig
	logger *slog.Logger

	mu    sync.Mutex
	relay *relay.Client
}

// NewSession wires the views to cfg.API.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RedialDelay <= 0 {
		cfg.RedialDelay = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	feed, err := NewFeed(cfg.API, cfg.State)
	if err != nil {
		return nil, err
	}
	return &Session{
		Feed:    feed,
		Review:  NewReview(cfg.API),
		Monitor: &Monitor{},
		Stream:  NewStream(),
		cfg:     cfg,
		logger:  logger.With("component", "dashboard"),
	}, nil
}

// Run polls the feed and keeps the relay connected until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.poll(ctx) })
	if s.cfg.RelayURL != "" {
		g.Go(func() error { return s.connect(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ToggleMonitoring flips the detection flag over the relay.
func (s *Session) ToggleMonitoring() (bool, error) {
	c := s.client()
	if c == nil {
		return s.Monitor.State().Active, ErrOffline
	}
	return s.Monitor.Toggle(c)
}

// SetMonitoring requests the detection flag over the relay.
func (s *Session) SetMonitoring(active bool) error {
	c := s.client()
	if c == nil {
		return ErrOffline
	}
	return s.Monitor.Set(c, active)
}

func (s *Session) client() *relay.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay
}

func (s *Session) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		view, err := s.Feed.Refresh(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Warn("alert poll failed", "error", err)
		case err == nil && s.cfg.OnFeed != nil:
			s.cfg.OnFeed(view)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	for {
		if err := s.serveRelay(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("relay connection lost", "url", s.cfg.RelayURL, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RedialDelay):
		}
	}
}

func (s *Session) serveRelay(ctx context.Context) error {
	c, err := relay.Dial(ctx, s.cfg.RelayURL, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.relay = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.relay = nil
		s.mu.Unlock()
		_ = c.Close()
		s.Stream.Disconnected()
		if s.cfg.OnStream != nil {
			s.cfg.OnStream(false)
		}
	}()

	if err := s.Stream.Connected(c); err != nil {
		return err
	}
	if s.cfg.OnStream != nil {
		s.cfg.OnStream(true)
	}
	s.logger.Info("relay connected", "url", s.cfg.RelayURL)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.Messages():
			if !ok {
				return errors.New("relay closed the connection")
			}
			s.dispatch(msg)
		}
	}
}

func (s *Session) dispatch(msg relay.Message) {
	if msg.IsFrame() {
		s.Stream.Receive(msg)
		return
	}
	if msg.Envelope.Event == relay.EventSetMonitoring {
		var st relay.MonitoringState
		if err := json.Unmarshal(msg.Envelope.Data, &st); err != nil {
			s.logger.Debug("ignoring malformed set_monitoring", "error", err)
			return
		}
		s.Monitor.Observe(st)
	}
}
