package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ConversationRef returns the backend conversation handle for a contact,
// or ErrNotFound when the contact has never spoken before.
func (s *Store) ConversationRef(ctx context.Context, contact string) (string, error) {
	var ref string
	err := s.pool.QueryRow(ctx,
		`SELECT conversation_ref FROM conversations WHERE contact = $1`,
		contact,
	).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get conversation: %w", err)
	}
	return ref, nil
}

// ClaimConversationRef stores ref for a contact unless another worker got
// there first, and returns whichever handle won. created_at is preserved
// across the upsert, so concurrent claims for the same contact settle on
// one handle without resetting the conversation's age.
func (s *Store) ClaimConversationRef(ctx context.Context, contact, ref string) (string, error) {
	var winner string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (contact, conversation_ref)
		VALUES ($1, $2)
		ON CONFLICT (contact) DO UPDATE SET
			updated_at = now()
		RETURNING conversation_ref`,
		contact, ref,
	).Scan(&winner)
	if err != nil {
		return "", fmt.Errorf("claim conversation: %w", err)
	}
	return winner, nil
}

// RotateConversationRef replaces the handle on explicit reset. The row's
// created_at is preserved; only the handle and updated_at change.
func (s *Store) RotateConversationRef(ctx context.Context, contact, ref string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (contact, conversation_ref)
		VALUES ($1, $2)
		ON CONFLICT (contact) DO UPDATE SET
			conversation_ref = EXCLUDED.conversation_ref,
			updated_at = now()`,
		contact, ref,
	)
	if err != nil {
		return fmt.Errorf("rotate conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes the handle mapping for a contact.
func (s *Store) DeleteConversation(ctx context.Context, contact string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE contact = $1`, contact)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
