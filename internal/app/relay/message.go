/*
Package relay contains the core logic of the message relay: the connection registry,
presence broadcasting, and routing of directed messages between live connections.

This file defines the wire-level message structures exchanged with clients, the
store boundary for message persistence, and the relay's arrival-time clock.
*/
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Tzinov15/messaging-app-backend/internal/app/identity"
)

// Action discriminators carried on every outbound frame.
const (
	// ActionClientNew is sent to a freshly connected client and carries the
	// roster plus the client's message history.
	ActionClientNew = "CLIENT_NEW"

	// ActionClientConnect is sent to existing clients when someone joins.
	ActionClientConnect = "CLIENT_CONNECT"

	// ActionClientDisconnect is sent to remaining clients when someone leaves.
	ActionClientDisconnect = "CLIENT_DISCONNECT"

	// ActionUserMessage carries a directed chat message.
	ActionUserMessage = "USER_MESSAGE"

	// ActionError carries a delivery-failure notice to the sending client only.
	ActionError = "ERROR"
)

// serverReplyBody is the canned body of the relay's synthetic reply when a
// client messages the SERVER participant.
const serverReplyBody = "Hi I'm the server!"

// Message is a directed chat message. The timestamp is stamped by the relay at
// arrival; whatever the client claims is discarded. A Message is immutable once
// routed.
type Message struct {
	Author    string          `json:"author"`
	Recipient string          `json:"recipient"`
	Body      string          `json:"msg"`
	Avatar    identity.Avatar `json:"avatarOptions"`
	Timestamp string          `json:"timestamp"`
}

// StoredMessage is a Message as returned from the persistence boundary,
// carrying the identifier and creation time assigned by the store.
type StoredMessage struct {
	ID uuid.UUID `json:"id"`
	Message
	CreatedAt time.Time `json:"createdAt"`
}

// MessageStore is the external persistence boundary for messages.
// Save persists a stamped message and returns the generated record identifier.
// FindByParticipant returns every message where the given username is either
// the author or the recipient.
type MessageStore interface {
	Save(ctx context.Context, msg Message) (uuid.UUID, error)
	FindByParticipant(ctx context.Context, username string) ([]StoredMessage, error)
}

// userMessageFrame is the outbound wrapper for a routed message.
type userMessageFrame struct {
	Action string `json:"action"`
	Message
}

// rosterFrame is the outbound wrapper for presence updates.
type rosterFrame struct {
	Action string              `json:"action"`
	Users  []identity.Identity `json:"users"`
}

// clientNewFrame is the outbound wrapper for the welcome frame: roster plus history.
type clientNewFrame struct {
	Action   string              `json:"action"`
	Users    []identity.Identity `json:"users"`
	Messages []StoredMessage     `json:"messages"`
}

// errorFrame is the outbound wrapper for sender-visible failures.
type errorFrame struct {
	Action  string `json:"action"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// stampClock renders the relay-observed arrival time in the clock format
// clients display, e.g. "4:05:09:042 pm".
func stampClock(t time.Time) string {
	return fmt.Sprintf("%s:%03d %s", t.Format("3:04:05"), t.Nanosecond()/1e6, t.Format("pm"))
}
