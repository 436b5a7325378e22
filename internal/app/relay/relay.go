/*
Package relay contains the core logic of the message relay.

This file defines the Relay struct, which owns the connection registry's lifecycle.
Presence events (connect/disconnect) are serialized through the Relay's Run loop and
broadcast to every live connection; directed messages are routed on the sender's
reader goroutine, preserving per-connection arrival order.
*/
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tzinov15/messaging-app-backend/internal/app/identity"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/errs"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/logx"
)

const (
	// size of the register/unregister event queues.
	presenceChannelBuffer = 64

	// timeout applied to every message store call.
	storeTimeout = 5 * time.Second
)

// Relay owns the registry of live connections and wires presence broadcasting
// and message routing to the transport layer's connect/message/disconnect events.
type Relay struct {
	// registry holds every live connection, keyed by username.
	registry *Registry

	// store is the external persistence boundary for messages.
	store MessageStore

	// replyDelay is how long the relay waits before answering a message
	// addressed to the SERVER participant.
	replyDelay time.Duration

	// register and unregister queue presence events for the Run loop.
	register   chan *Client
	unregister chan *Client

	// stopChan signals the Run loop and all deferred work to stop.
	stopChan chan struct{}
	stopOnce sync.Once

	// wg tracks the Run loop and every background task the relay spawns.
	wg sync.WaitGroup

	// structured logger with relay context.
	logger zerolog.Logger
}

// NewRelay constructs a Relay backed by the given message store.
// The caller starts the presence loop with go relay.Run().
func NewRelay(store MessageStore, replyDelay time.Duration) *Relay {
	relayLogger := logx.Logger().With().Str("component", "Relay").Logger()

	return &Relay{
		registry:   NewRegistry(),
		store:      store,
		replyDelay: replyDelay,
		register:   make(chan *Client, presenceChannelBuffer),
		unregister: make(chan *Client, presenceChannelBuffer),
		stopChan:   make(chan struct{}),
		logger:     relayLogger,
	}
}

// Run starts the relay's presence loop. It serializes connect and disconnect
// events so that two racing membership changes can never interleave their
// roster broadcasts.
func (r *Relay) Run() {
	r.wg.Add(1)
	defer r.wg.Done()

	r.logger.Info().Msg("Relay presence loop started.")

	for {
		select {
		case client := <-r.register:
			r.handleConnect(client)

		case client := <-r.unregister:
			r.handleDisconnect(client)

		case <-r.stopChan:
			r.logger.Info().Msg("Relay presence loop stopped.")
			return
		}
	}
}

// Register queues a connect event for the presence loop.
func (r *Relay) Register(c *Client) {
	select {
	case r.register <- c:
	case <-r.stopChan:
		c.shutdown()
	}
}

// Unregister queues a disconnect event for the presence loop.
func (r *Relay) Unregister(c *Client) {
	select {
	case r.unregister <- c:
	case <-r.stopChan:
	}
}

// Usernames returns the sorted usernames of all live connections.
func (r *Relay) Usernames() []string {
	return r.registry.Usernames()
}

// handleConnect registers the client, evicting any earlier connection that
// claimed the same username, and broadcasts the new roster. The joining client
// alone additionally receives its message history.
func (r *Relay) handleConnect(c *Client) {
	if prev := r.registry.Add(c); prev != nil {
		r.logger.Warn().
			Str("username", c.Identity().Username).
			Msg("Username already connected. Replacing old connection.")

		prev.Kick("Session replaced by new connection. Check other tabs.")
	}

	r.logger.Info().
		Str("username", c.Identity().Username).
		Int("total_users", r.registry.Len()).
		Msg("Client connected.")

	roster := r.registry.Roster()

	for _, target := range r.registry.Snapshot() {
		if target == c {
			r.sendWelcome(target, roster)
			continue
		}

		frame := rosterFrame{Action: ActionClientConnect, Users: roster}
		if err := target.sendFrame(frame); err != nil {
			r.logger.Warn().Err(err).
				Str("username", target.Identity().Username).
				Msg("Failed to deliver connect roster update.")
		}
	}
}

// handleDisconnect removes the client and broadcasts the shrunk roster to the
// remaining connections. Removal is idempotent; a stale connection that was
// already replaced produces no broadcast.
func (r *Relay) handleDisconnect(c *Client) {
	c.shutdown()

	if !r.registry.Remove(c) {
		r.logger.Debug().
			Str("username", c.Identity().Username).
			Msg("Ignoring unregister for stale or already removed connection.")
		return
	}

	r.logger.Info().
		Str("username", c.Identity().Username).
		Int("total_users", r.registry.Len()).
		Msg("Client disconnected.")

	roster := r.registry.Roster()

	for _, target := range r.registry.Snapshot() {
		frame := rosterFrame{Action: ActionClientDisconnect, Users: roster}
		if err := target.sendFrame(frame); err != nil {
			r.logger.Warn().Err(err).
				Str("username", target.Identity().Username).
				Msg("Failed to deliver disconnect roster update.")
		}
	}
}

// sendWelcome fetches the joining client's message history and delivers the
// CLIENT_NEW frame. The fetch runs off the presence loop so a slow store never
// delays roster delivery to other connections; on fetch failure the client is
// welcomed with an empty history.
func (r *Relay) sendWelcome(c *Client, roster []identity.Identity) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		history, err := r.store.FindByParticipant(ctx, c.Identity().Username)
		if err != nil {
			r.logger.Error().Err(err).
				Str("username", c.Identity().Username).
				Msg("Failed to fetch message history. Welcoming client without it.")
			history = nil
		}

		if history == nil {
			history = []StoredMessage{}
		}

		frame := clientNewFrame{
			Action:   ActionClientNew,
			Users:    roster,
			Messages: history,
		}

		if err := c.sendFrame(frame); err != nil {
			r.logger.Warn().Err(err).
				Str("username", c.Identity().Username).
				Msg("Failed to deliver welcome frame.")
		}
	}()
}

// route processes one inbound frame from sender. It stamps the arrival time,
// persists the message, echoes it back to the sender, and forwards it to the
// resolved recipient. Malformed frames are dropped; the connection stays open.
func (r *Relay) route(sender *Client, frameBytes []byte) {
	var msg Message
	if err := json.Unmarshal(frameBytes, &msg); err != nil {
		r.logger.Warn().Err(err).
			Str("username", sender.Identity().Username).
			Bytes("frame_bytes", frameBytes).
			Msg("Client sent invalid message frame. Dropping.")
		return
	}

	// Arrival time is relay-observed; the client is not trusted for this field.
	msg.Timestamp = stampClock(time.Now())

	r.persistAsync(msg)

	echo := userMessageFrame{Action: ActionUserMessage, Message: msg}
	if err := sender.sendFrame(echo); err != nil {
		r.logger.Warn().Err(err).
			Str("username", sender.Identity().Username).
			Msg("Failed to echo message to sender.")
	}

	if msg.Recipient == identity.ServerUsername {
		r.scheduleServerReply(sender)
		return
	}

	target := r.registry.Find(msg.Recipient)
	if target == nil {
		r.logger.Info().
			Str("author", msg.Author).
			Str("recipient", msg.Recipient).
			Msg("Recipient has no live connection. Notifying sender.")

		sender.SendError(errs.NewError(errs.ErrRecipientUnavailable, msg.Recipient))
		return
	}

	delivery := userMessageFrame{Action: ActionUserMessage, Message: msg}
	if err := target.sendFrame(delivery); err != nil {
		r.logger.Warn().Err(err).
			Str("recipient", msg.Recipient).
			Msg("Failed to deliver message to recipient.")

		sender.SendError(errs.NewError(errs.ErrSendFailed))
	}
}

// scheduleServerReply answers a message addressed to the SERVER participant
// after the configured delay. The deferred task is tied to the sender's
// lifetime: if the sender disconnects before the delay elapses, the reply is
// cancelled rather than fired against a dead connection.
func (r *Relay) scheduleServerReply(sender *Client) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(r.replyDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sender.Done():
			r.logger.Debug().
				Str("username", sender.Identity().Username).
				Msg("Sender disconnected before server reply fired. Cancelling.")
			return
		case <-r.stopChan:
			return
		}

		reply := Message{
			Author:    identity.ServerUsername,
			Recipient: sender.Identity().Username,
			Body:      serverReplyBody,
			Avatar:    identity.ServerAvatar,
			Timestamp: stampClock(time.Now()),
		}

		r.persistAsync(reply)

		frame := userMessageFrame{Action: ActionUserMessage, Message: reply}
		if err := sender.sendFrame(frame); err != nil {
			r.logger.Warn().Err(err).
				Str("username", sender.Identity().Username).
				Msg("Failed to deliver server reply.")
		}
	}()
}

// persistAsync saves the message without blocking delivery. A storage outage
// is logged and never halts live chat.
func (r *Relay) persistAsync(msg Message) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		id, err := r.store.Save(ctx, msg)
		if err != nil {
			r.logger.Error().Err(err).
				Str("author", msg.Author).
				Str("recipient", msg.Recipient).
				Msg("Failed to persist message. Delivery proceeds regardless.")
			return
		}

		r.logger.Debug().
			Str("message_id", id.String()).
			Str("author", msg.Author).
			Str("recipient", msg.Recipient).
			Msg("Message persisted.")
	}()
}

// Shutdown stops the presence loop, tears down every live connection, and
// waits for all background tasks (history fetches, deferred replies,
// persistence writes) to finish.
func (r *Relay) Shutdown() {
	r.logger.Info().Msg("Shutting down relay...")

	r.stopOnce.Do(func() {
		close(r.stopChan)
	})

	for _, c := range r.registry.Snapshot() {
		c.shutdown()
		r.registry.Remove(c)
	}

	r.wg.Wait()

	r.logger.Info().Msg("Relay shutdown complete.")
}
