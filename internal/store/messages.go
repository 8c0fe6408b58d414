package store

import (
	"context"
	"fmt"
	"time"
)

type Message struct {
	Sender     string
	Body       string
	ExternalID string
	Status     string
	CreatedAt  time.Time
}

// AddMessage appends to the contact's transcript. externalID is the
// channel's message id when known ("" otherwise).
func (s *Store) AddMessage(ctx context.Context, contact, sender, body, externalID string) error {
	var ext *string
	if externalID != "" {
		ext = &externalID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (contact, sender, body, external_id)
		VALUES ($1, $2, $3, $4)`,
		contact, sender, body, ext,
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// Messages returns the transcript in chronological order. limit <= 0
// returns everything.
func (s *Store) Messages(ctx context.Context, contact string, limit int) ([]Message, error) {
	q := `
		SELECT sender, body, COALESCE(external_id, ''), status, created_at
		FROM messages WHERE contact = $1 ORDER BY created_at, id`
	args := []any{contact}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Sender, &m.Body, &m.ExternalID, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateMessageStatus records a channel delivery-status update against
// the message's external id.
func (s *Store) UpdateMessageStatus(ctx context.Context, externalID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET status = $2 WHERE external_id = $1`,
		externalID, status,
	)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}
