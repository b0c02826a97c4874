package postgres

import (
	"context"
	"fmt"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/simulation"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIMULATOR PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements simulation.ProfileRepository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// Get returns the profile, or a fresh zero-valued one for a specialist with
// no recorded sessions.
func (r *ProfileRepository) Get(ctx context.Context, specialist identity.TelegramID) (*simulation.Profile, error) {
	query := `
		SELECT specialist_telegram_id, sessions_count, avg_tsi, avg_green_ratio,
		       avg_yellow_ratio, avg_red_ratio, avg_trust_delta, updated_at
		FROM simulator_profiles
		WHERE specialist_telegram_id = $1
	`
	row := r.conn.QueryRow(ctx, query, int64(specialist))

	var (
		p  simulation.Profile
		id int64
	)
	err := row.Scan(&id, &p.SessionsCount, &p.AvgTSI, &p.AvgGreenRatio,
		&p.AvgYellowRatio, &p.AvgRedRatio, &p.AvgTrustDelta, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return &simulation.Profile{SpecialistTelegramID: specialist}, nil
		}
		return nil, fmt.Errorf("failed to scan simulator profile: %w", err)
	}
	p.SpecialistTelegramID = identity.TelegramID(id)
	return &p, nil
}

// Upsert writes the full profile row.
func (r *ProfileRepository) Upsert(ctx context.Context, p *simulation.Profile) error {
	query := `
		INSERT INTO simulator_profiles (specialist_telegram_id, sessions_count, avg_tsi,
			avg_green_ratio, avg_yellow_ratio, avg_red_ratio, avg_trust_delta, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (specialist_telegram_id) DO UPDATE SET
			sessions_count = EXCLUDED.sessions_count,
			avg_tsi = EXCLUDED.avg_tsi,
			avg_green_ratio = EXCLUDED.avg_green_ratio,
			avg_yellow_ratio = EXCLUDED.avg_yellow_ratio,
			avg_red_ratio = EXCLUDED.avg_red_ratio,
			avg_trust_delta = EXCLUDED.avg_trust_delta,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		int64(p.SpecialistTelegramID), p.SessionsCount, p.AvgTSI,
		p.AvgGreenRatio, p.AvgYellowRatio, p.AvgRedRatio, p.AvgTrustDelta, timeutil.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert simulator profile: %w", err)
	}
	return nil
}
