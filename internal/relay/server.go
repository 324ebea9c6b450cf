package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Server upgrades HTTP requests to relay connections on a Hub.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates the websocket endpoint for hub.
func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16384,
			// Collaborators are co-located; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := s.hub.Join()
	go s.writePump(conn, p)
	s.readPump(conn, p)
}

// readPump is the only reader of conn. Messages from one connection are
// routed in arrival order.
func (s *Server) readPump(conn *websocket.Conn, p *Participant) {
	defer func() {
		s.hub.Leave(p)
		_ = conn.Close()
	}()

	conn.SetReadLimit(s.hub.MaxMessageBytes())
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("relay read ended", "participant", p.ID, "error", err)
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.hub.RelayFrame(p, data)
		case websocket.TextMessage:
			s.hub.HandleRaw(p, data)
		}
	}
}

// writePump is the only writer of conn. Control messages go out before
// queued frames.
func (s *Server) writePump(conn *websocket.Conn, p *Participant) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		var msg Outbound
		select {
		case msg = <-p.control:
		default:
			select {
			case msg = <-p.control:
			case msg = <-p.frames:
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			case <-p.done:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}

		msgType := websocket.TextMessage
		if msg.Binary {
			msgType = websocket.BinaryMessage
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(msgType, msg.Data); err != nil {
			s.logger.Debug("relay write failed", "participant", p.ID, "error", err)
			return
		}
	}
}
