/*
Package store provides the durable message store backing the relay.

It implements the relay's MessageStore boundary on top of PostgreSQL via pgx:
messages are appended on save and queried by participant (author or recipient)
when a client reconnects and needs its history.
*/
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tzinov15/messaging-app-backend/internal/app/relay"
)

// MessageStore persists relay messages in PostgreSQL.
type MessageStore struct {
	pool *pgxpool.Pool
}

// compile-time check that the relay boundary is satisfied.
var _ relay.MessageStore = (*MessageStore)(nil)

// NewMessageStore wraps an initialized connection pool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Save appends the stamped message and returns the generated record identifier.
func (s *MessageStore) Save(ctx context.Context, msg relay.Message) (uuid.UUID, error) {
	id := uuid.New()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, author, recipient, body, avatar, arrival_time)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, msg.Author, msg.Recipient, msg.Body, msg.Avatar, msg.Timestamp,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save message: %w", err)
	}

	return id, nil
}

// FindByParticipant returns every message where username is the author or the
// recipient, oldest first.
func (s *MessageStore) FindByParticipant(ctx context.Context, username string) ([]relay.StoredMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, author, recipient, body, avatar, arrival_time, created_at
		 FROM messages
		 WHERE author = $1 OR recipient = $1
		 ORDER BY created_at ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", username, err)
	}
	defer rows.Close()

	var messages []relay.StoredMessage
	for rows.Next() {
		var m relay.StoredMessage
		if err := rows.Scan(&m.ID, &m.Author, &m.Recipient, &m.Body, &m.Avatar, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading message rows: %w", err)
	}

	return messages, nil
}
