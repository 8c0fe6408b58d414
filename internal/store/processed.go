package store

import (
	"context"
	"fmt"
	"time"
)

// ClaimMessage atomically records messageID in the idempotency ledger and
// reports whether this caller won the claim. The insert happens before
// any side-effecting work; a crash between claiming and completing can
// lose the message, which is the accepted tradeoff over duplicating AI
// calls and outbound sends.
func (s *Store) ClaimMessage(ctx context.Context, messageID, contact string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, contact)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING`,
		messageID, contact,
	)
	if err != nil {
		return false, fmt.Errorf("claim message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeProcessed drops ledger entries older than the retention window.
// Timing is best-effort; the caller runs it on a ticker.
func (s *Store) PurgeProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM processed_messages WHERE processed_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge processed: %w", err)
	}
	return tag.RowsAffected(), nil
}
