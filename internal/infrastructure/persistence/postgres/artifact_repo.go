package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/artifact"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARTIFACT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ArtifactRepository implements artifact.Repository for PostgreSQL.
type ArtifactRepository struct {
	conn *Connection
}

// NewArtifactRepository creates a new ArtifactRepository.
func NewArtifactRepository(conn *Connection) *ArtifactRepository {
	return &ArtifactRepository{conn: conn}
}

// Save inserts the artifact. A retried completion hits the UNIQUE(run_id,
// service_id) constraint and the insert silently does nothing.
func (r *ArtifactRepository) Save(ctx context.Context, a *artifact.Artifact) error {
	query := `
		INSERT INTO artifacts (id, context_id, service_id, run_id, specialist_telegram_id, payload, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, service_id) DO NOTHING
	`
	_, err := r.conn.Exec(ctx, query,
		a.ID, a.ContextID, a.ServiceID, a.RunID, a.SpecialistTelegramID,
		[]byte(a.Payload), a.Summary, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// ListByContext returns the newest artifacts for a context, optionally
// filtered by service. An empty serviceID means all services.
func (r *ArtifactRepository) ListByContext(ctx context.Context, contextID uuid.UUID, serviceID string) ([]artifact.SummaryView, error) {
	query := `
		SELECT id, context_id, service_id, run_id, summary, created_at
		FROM artifacts
		WHERE context_id = $1 AND ($2 = '' OR service_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.conn.Query(ctx, query, contextID, serviceID, artifact.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var views []artifact.SummaryView
	for rows.Next() {
		var v artifact.SummaryView
		if err := rows.Scan(&v.ID, &v.ContextID, &v.ServiceID, &v.RunID, &v.Summary, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact summary: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// GetByID returns the full artifact or artifact.ErrNotFound.
func (r *ArtifactRepository) GetByID(ctx context.Context, id uuid.UUID) (*artifact.Artifact, error) {
	query := `
		SELECT id, context_id, service_id, run_id, specialist_telegram_id, payload, summary, created_at
		FROM artifacts
		WHERE id = $1
	`
	row := r.conn.QueryRow(ctx, query, id)

	var (
		a       artifact.Artifact
		payload []byte
	)
	err := row.Scan(&a.ID, &a.ContextID, &a.ServiceID, &a.RunID, &a.SpecialistTelegramID,
		&payload, &a.Summary, &a.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, artifact.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}
	a.Payload = payload
	return &a, nil
}
