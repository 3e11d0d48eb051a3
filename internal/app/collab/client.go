/*
Package collab implements the realtime collaboration layer: authenticated connections,
project rooms, permission-gated events and their fan-out to connected project members.

This file defines the Client struct, the websocket transport of one connection. It owns the
socket, runs the read and write loops (ReadPump and WritePump) and implements Sender for
the Hub.
*/
package collab

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 16384

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256

	// WsCloseCodeAuthTimeout is a custom WebSocket Close Code (4000-4999 range)
	// telling the client it did not authenticate within the grace period.
	WsCloseCodeAuthTimeout = 4001
)

// Client is the websocket endpoint of one connection.
type Client struct {
	id  ConnID
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be written to the socket.
	send chan []byte

	// mu guards closed, closeFrame and the close of send.
	mu         sync.RWMutex
	closed     bool
	closeFrame []byte

	authTimer *time.Timer

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient wraps an upgraded socket and registers it with hub. The connection has
// authGrace to authenticate before it is closed; zero disables the deadline.
func NewClient(hub *Hub, wsConn *websocket.Conn, authGrace time.Duration) *Client {
	c := &Client{
		hub:  hub,
		conn: wsConn,
		send: make(chan []byte, sendQueueSize),
	}

	c.id = hub.Accept(c)
	c.logger = logx.Logger().With().
		Str("component", "client").
		Str("conn_id", string(c.id)).
		Logger()

	if authGrace > 0 {
		c.mu.Lock()
		if !c.closed {
			c.authTimer = time.AfterFunc(authGrace, c.expireIfUnauthenticated)
		}
		c.mu.Unlock()
	}

	return c
}

// ID returns the connection id assigned by the Hub.
func (c *Client) ID() ConnID {
	return c.id
}

// TrySend queues frame for writing without blocking.
func (c *Client) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrSenderClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return ErrSendQueueFull
	}
}

// Close ends the connection with a normal closure. It is idempotent.
func (c *Client) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

// Kick ends the connection with a custom close code and reason.
func (c *Client) Kick(code int, reason string) {
	c.logger.Warn().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Closing connection with custom close code.")

	c.closeWith(code, reason)
}

// closeWith records the close frame and closes the send queue; WritePump writes the frame
// and closes the socket once the queue drains.
func (c *Client) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.closeFrame = websocket.FormatCloseMessage(code, reason)
	close(c.send)

	if c.authTimer != nil {
		c.authTimer.Stop()
	}
}

func (c *Client) expireIfUnauthenticated() {
	if c.hub.ExpireUnauthenticated(c.id) {
		c.Kick(WsCloseCodeAuthTimeout, errs.NewError(errs.ErrAuthTimeout).Message)
	}
}

// ReadPump reads frames from the socket and hands them to the Hub one at a time.
// When the socket fails or closes the connection is torn down through the Hub.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		c.hub.Disconnect(c.id)
		c.Close()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn().Int("message_type", messageType).Msg("Client sent non-text frame")
			continue
		}

		c.hub.Handle(ctx, c.id, frame)
	}
}

// WritePump writes queued frames and periodic pings to the socket. It exits once the send
// queue is closed, after writing the close frame, or on the first write error.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel. A closed channel writes
// the recorded close frame. Returns false if the WritePump loop should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		c.hub.Disconnect(c.id)
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
