/*
Package relay contains the core logic of the message relay.

This file defines the Client struct, representing an active WebSocket connection. It manages the
client's lifecycle, the message communication loops (ReadPump and WritePump), and the hand-off
of inbound frames to the relay's routing loop.
*/
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tzinov15/messaging-app-backend/internal/app/identity"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/errs"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// size of the per-client outbound queue.
	sendChannelBuffer = 256

	// WsCloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that a newer connection claimed the same username.
	WsCloseCodeSessionReplaced = 4001
)

// Client represents an active WebSocket connection and its fixed participant identity.
type Client struct {
	// the relay this connection belongs to.
	relay *Relay

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// self-asserted identity, fixed at connect time and never reassigned.
	identity identity.Identity

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// done is closed exactly once when the connection is torn down. Deferred
	// work tied to this connection selects on it to cancel itself.
	done chan struct{}

	closeOnce sync.Once

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance.
func NewClient(relay *Relay, wsConn *websocket.Conn, id identity.Identity) *Client {
	clientLogger := logx.Logger().With().
		Str("username", id.Username).
		Logger()

	return &Client{
		relay:    relay,
		conn:     wsConn,
		identity: id,
		send:     make(chan []byte, sendChannelBuffer),
		done:     make(chan struct{}),
		logger:   clientLogger,
	}
}

// Identity returns the participant identity attached to this connection.
func (c *Client) Identity() identity.Identity {
	return c.identity
}

// Done returns a channel that is closed when the connection is torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump handles reading messages from the WebSocket connection.
// It handles heartbeats (Pong), hands inbound frames to the relay in arrival
// order, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.relay.route(c, messageBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.shutdown()

	c.relay.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// shutdown marks the connection as torn down, cancelling deferred work tied to it.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
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
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-c.done:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
			}
			return

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage handles frames pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
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

// sendFrame marshals the data and attempts to queue it for delivery to the client.
// It fails rather than blocks when the connection is torn down or the queue is full.
func (c *Client) sendFrame(data any) error {
	messageBytes, err := json.Marshal(data)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling frame for client")
		return err
	}

	select {
	case <-c.done:
		return errors.New("client connection is closed")
	default:
	}

	select {
	case c.send <- messageBytes:
		return nil
	case <-c.done:
		return errors.New("client connection is closed")
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return fmt.Errorf("client send queue full")
	}
}

// SendError constructs and sends an ERROR frame to the client.
// Only the client on the failing side of an operation ever sees it.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	frame := errorFrame{
		Action:  ActionError,
		Code:    code,
		Message: message,
	}

	if sendErr := c.sendFrame(frame); sendErr != nil {
		c.logger.Warn().Err(sendErr).Msg("Failed to queue error frame")
	}
}

// Kick gracefully closes the client's connection by sending a custom WebSocket
// Close Frame (Code 4001) indicating that the session was replaced.
func (c *Client) Kick(reason string) {
	c.logger.Warn().
		Int("close_code", WsCloseCodeSessionReplaced).
		Str("reason", reason).
		Msg("Sending WS Kick message and closing connection.")

	closeMessage := websocket.FormatCloseMessage(
		WsCloseCodeSessionReplaced,
		reason,
	)

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send WS 4001 Close Message.")
	}

	c.shutdown()
}
