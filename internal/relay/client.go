package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one message received by a Client. Exactly one of Envelope or
// Frame is set.
type Message struct {
	Envelope Envelope
	Frame    []byte
}

// IsFrame reports whether m carries a video frame.
func (m Message) IsFrame() bool {
	return m.Frame != nil || m.Envelope.Event == EventLiveStream
}

// Client is a relay participant on the dialing side.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	msgs    chan Message

	closeOnce sync.Once
	done      chan struct{}
}

// ErrClientClosed is returned when emitting on a closed client.
var ErrClientClosed = errors.New("relay client closed")

// Dial connects to a relay endpoint such as ws://host:5000/ws.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn: conn,
		msgs: make(chan Message, 64),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages yields received messages and is closed when the connection ends.
func (c *Client) Messages() <-chan Message { return c.msgs }

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

// Emit sends an event with payload encoded as JSON.
func (c *Client) Emit(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}
	return c.write(websocket.TextMessage, encodeEnvelope(event, data))
}

// EmitFrame sends a raw binary frame.
func (c *Client) EmitFrame(frame []byte) error {
	return c.write(websocket.BinaryMessage, frame)
}

func (c *Client) write(msgType int, data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.msgs)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		switch msgType {
		case websocket.BinaryMessage:
			msg.Frame = data
		case websocket.TextMessage:
			if err := json.Unmarshal(data, &msg.Envelope); err != nil {
				continue
			}
		default:
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}
