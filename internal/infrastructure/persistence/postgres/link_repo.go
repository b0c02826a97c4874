package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/link"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK TOKEN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LinkRepository implements link.Repository for PostgreSQL.
type LinkRepository struct {
	conn *Connection
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(conn *Connection) *LinkRepository {
	return &LinkRepository{conn: conn}
}

// Create inserts a freshly issued token.
func (r *LinkRepository) Create(ctx context.Context, t *link.Token) error {
	query := `
		INSERT INTO link_tokens (jti, run_id, service_id, context_id, role, subject_id, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.conn.Exec(ctx, query,
		t.Jti, t.RunID, t.ServiceID, t.ContextID, string(t.Role), int64(t.SubjectID),
		t.ExpiresAt, t.UsedAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create link token: %w", err)
	}
	return nil
}

// GetByJti returns the token or link.ErrNotFound.
func (r *LinkRepository) GetByJti(ctx context.Context, jti uuid.UUID) (*link.Token, error) {
	query := `
		SELECT jti, run_id, service_id, context_id, role, subject_id, expires_at, used_at, created_at
		FROM link_tokens
		WHERE jti = $1
	`
	row := r.conn.QueryRow(ctx, query, jti)

	var (
		t         link.Token
		role      string
		subjectID int64
	)
	err := row.Scan(&t.Jti, &t.RunID, &t.ServiceID, &t.ContextID, &role, &subjectID,
		&t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, link.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan link token: %w", err)
	}
	t.Role = identity.Role(role)
	t.SubjectID = identity.TelegramID(subjectID)
	return &t, nil
}

// Consume sets used_at iff it is still NULL. The guarded UPDATE is the CAS
// that keeps the token one-shot under concurrent double delivery: exactly one
// caller sees RowsAffected() == 1.
func (r *LinkRepository) Consume(ctx context.Context, jti uuid.UUID) error {
	query := `
		UPDATE link_tokens SET used_at = NOW()
		WHERE jti = $1 AND used_at IS NULL
	`
	tag, err := r.conn.Exec(ctx, query, jti)
	if err != nil {
		return fmt.Errorf("failed to consume link token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByJti(ctx, jti); err != nil {
			return err
		}
		return link.ErrAlreadyUsed
	}
	return nil
}

// PurgeExpired deletes tokens whose expiry is older than the cutoff, used
// and unused alike.
func (r *LinkRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM link_tokens WHERE expires_at < $1`
	tag, err := r.conn.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge link tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
