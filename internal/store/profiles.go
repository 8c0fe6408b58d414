package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/scriba-ai/scriba/internal/extractor"
)

// Mode gates whether AI replies are auto-delivered or held as drafts.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

type Profile struct {
	Contact     string
	Info        extractor.ContactInfo
	Notes       string
	Complete    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

type Draft struct {
	Text      string
	CreatedAt time.Time
}

// EnsureProfile creates an empty profile row on first contact. No-op if
// the row exists.
func (s *Store) EnsureProfile(ctx context.Context, contact string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contact_profiles (contact) VALUES ($1)
		ON CONFLICT (contact) DO NOTHING`,
		contact,
	)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, contact string) (*Profile, error) {
	p := Profile{Contact: contact}
	err := s.pool.QueryRow(ctx, `
		SELECT name, last_name, company, email, notes, complete,
		       created_at, updated_at, completed_at
		FROM contact_profiles WHERE contact = $1`,
		contact,
	).Scan(
		&p.Info.Name, &p.Info.LastName, &p.Info.Company, &p.Info.Email,
		&p.Notes, &p.Complete, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// MergeProfileInfo folds extracted fields into the stored profile with
// coalesce-on-non-empty semantics enforced in SQL, so concurrent partial
// updates can never null out a populated field. Completeness and
// completed_at are recomputed from the merged row in the same
// transaction. Serialization conflicts are retried once.
func (s *Store) MergeProfileInfo(ctx context.Context, contact string, info extractor.ContactInfo) error {
	err := s.mergeProfileInfo(ctx, contact, info)
	if err != nil && isSerializationFailure(err) {
		err = s.mergeProfileInfo(ctx, contact, info)
	}
	if err != nil {
		return fmt.Errorf("merge profile: %w", err)
	}
	return nil
}

func (s *Store) mergeProfileInfo(ctx context.Context, contact string, info extractor.ContactInfo) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO contact_profiles (contact, name, last_name, company, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (contact) DO UPDATE SET
			name      = COALESCE(NULLIF(EXCLUDED.name, ''), contact_profiles.name),
			last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), contact_profiles.last_name),
			company   = COALESCE(NULLIF(EXCLUDED.company, ''), contact_profiles.company),
			email     = COALESCE(NULLIF(EXCLUDED.email, ''), contact_profiles.email),
			updated_at = now()`,
		contact, info.Name, info.LastName, info.Company, info.Email,
	)
	if err != nil {
		return fmt.Errorf("upsert fields: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE contact_profiles SET
			complete = (name <> '' AND last_name <> '' AND company <> '' AND email <> ''),
			completed_at = CASE
				WHEN (name <> '' AND last_name <> '' AND company <> '' AND email <> '')
				     AND completed_at IS NULL
				THEN now()
				ELSE completed_at
			END
		WHERE contact = $1`,
		contact,
	)
	if err != nil {
		return fmt.Errorf("recompute completeness: %w", err)
	}

	return tx.Commit(ctx)
}

// SetProfileFields is the operator path: provided values are written as
// given (an operator may correct a wrong field), then completeness is
// recomputed. nil entries are left untouched.
func (s *Store) SetProfileFields(ctx context.Context, contact string, name, lastName, company, email *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE contact_profiles SET
			name       = COALESCE($2, name),
			last_name  = COALESCE($3, last_name),
			company    = COALESCE($4, company),
			email      = COALESCE($5, email),
			updated_at = now()
		WHERE contact = $1`,
		contact, name, lastName, company, email,
	)
	if err != nil {
		return fmt.Errorf("update fields: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE contact_profiles SET
			complete = (name <> '' AND last_name <> '' AND company <> '' AND email <> ''),
			completed_at = CASE
				WHEN (name <> '' AND last_name <> '' AND company <> '' AND email <> '')
				     AND completed_at IS NULL
				THEN now()
				ELSE completed_at
			END
		WHERE contact = $1`,
		contact,
	)
	if err != nil {
		return fmt.Errorf("recompute completeness: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) GetMode(ctx context.Context, contact string) (Mode, error) {
	var manual bool
	err := s.pool.QueryRow(ctx,
		`SELECT manual_mode FROM contact_profiles WHERE contact = $1`,
		contact,
	).Scan(&manual)
	if errors.Is(err, pgx.ErrNoRows) {
		return ModeAuto, nil
	}
	if err != nil {
		return "", fmt.Errorf("get mode: %w", err)
	}
	if manual {
		return ModeManual, nil
	}
	return ModeAuto, nil
}

func (s *Store) SetMode(ctx context.Context, contact string, mode Mode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contact_profiles (contact, manual_mode)
		VALUES ($1, $2)
		ON CONFLICT (contact) DO UPDATE SET
			manual_mode = EXCLUDED.manual_mode,
			updated_at  = now()`,
		contact, mode == ModeManual,
	)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

// SaveDraft overwrites the contact's single draft slot wholesale.
func (s *Store) SaveDraft(ctx context.Context, contact, text string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contact_profiles (contact, draft, draft_created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (contact) DO UPDATE SET
			draft            = EXCLUDED.draft,
			draft_created_at = now(),
			updated_at       = now()`,
		contact, text,
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// GetDraft returns ErrNotFound when no draft is held for the contact.
func (s *Store) GetDraft(ctx context.Context, contact string) (*Draft, error) {
	var d Draft
	var created *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT draft, draft_created_at FROM contact_profiles WHERE contact = $1`,
		contact,
	).Scan(&d.Text, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if d.Text == "" {
		return nil, ErrNotFound
	}
	if created != nil {
		d.CreatedAt = *created
	}
	return &d, nil
}

func (s *Store) ClearDraft(ctx context.Context, contact string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contact_profiles SET
			draft = '', draft_created_at = NULL, updated_at = now()
		WHERE contact = $1`,
		contact,
	)
	if err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (s *Store) GetNotes(ctx context.Context, contact string) (string, error) {
	var notes string
	err := s.pool.QueryRow(ctx,
		`SELECT notes FROM contact_profiles WHERE contact = $1`,
		contact,
	).Scan(&notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get notes: %w", err)
	}
	return notes, nil
}

func (s *Store) SetNotes(ctx context.Context, contact, notes string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contact_profiles (contact, notes)
		VALUES ($1, $2)
		ON CONFLICT (contact) DO UPDATE SET
			notes      = EXCLUDED.notes,
			updated_at = now()`,
		contact, notes,
	)
	if err != nil {
		return fmt.Errorf("set notes: %w", err)
	}
	return nil
}

// DeleteProfile removes all stored data for a contact. Exposed for
// data-erasure requests; nothing in the pipeline calls it.
func (s *Store) DeleteProfile(ctx context.Context, contact string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM contact_profiles WHERE contact = $1`,
		`DELETE FROM conversations WHERE contact = $1`,
		`DELETE FROM messages WHERE contact = $1`,
		`DELETE FROM processed_messages WHERE contact = $1`,
	} {
		if _, err := tx.Exec(ctx, q, contact); err != nil {
			return fmt.Errorf("erase contact: %w", err)
		}
	}
	return tx.Commit(ctx)
}
