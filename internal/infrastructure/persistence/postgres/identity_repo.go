package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements identity.UserRepository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// GetOrCreate returns the user with the given telegram id, inserting an
// active row with the given role on first contact. A concurrent first
// contact loses the insert race and falls through to the select.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID identity.TelegramID, role identity.Role) (*identity.User, error) {
	u, err := identity.NewUser(telegramID, role, timeutil.Now())
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (id, telegram_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (telegram_id) DO NOTHING
	`
	_, err = r.conn.Exec(ctx, query,
		u.ID, int64(u.TelegramID), string(u.Role), string(u.Status), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return r.GetByTelegramID(ctx, telegramID)
}

// GetByTelegramID returns a user by Telegram ID.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID identity.TelegramID) (*identity.User, error) {
	query := `
		SELECT id, telegram_id, role, status, created_at, updated_at
		FROM users
		WHERE telegram_id = $1
	`
	row := r.conn.QueryRow(ctx, query, int64(telegramID))
	return scanUser(row)
}

// GetByID returns a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	query := `
		SELECT id, telegram_id, role, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	row := r.conn.QueryRow(ctx, query, id)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*identity.User, error) {
	var (
		u          identity.User
		telegramID int64
		role       string
		status     string
	)
	err := row.Scan(&u.ID, &telegramID, &role, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.TelegramID = identity.TelegramID(telegramID)
	u.Role = identity.Role(role)
	u.Status = identity.UserStatus(status)
	return &u, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CASE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CaseRepository implements identity.CaseRepository for PostgreSQL.
type CaseRepository struct {
	conn *Connection
}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository(conn *Connection) *CaseRepository {
	return &CaseRepository{conn: conn}
}

// Create inserts a new case.
func (r *CaseRepository) Create(ctx context.Context, c *identity.Case) error {
	query := `
		INSERT INTO cases (id, specialist_id, client_label, status, created_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.conn.Exec(ctx, query,
		c.ID, c.SpecialistID, c.ClientLabel, string(c.Status), c.CreatedAt, c.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

// GetByID returns a case by id.
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*identity.Case, error) {
	query := `
		SELECT id, specialist_id, client_label, status, created_at, archived_at
		FROM cases
		WHERE id = $1
	`
	row := r.conn.QueryRow(ctx, query, id)
	return scanCase(row)
}

// ListBySpecialist returns the specialist's cases, newest first.
func (r *CaseRepository) ListBySpecialist(ctx context.Context, specialistID uuid.UUID, includeArchived bool) ([]*identity.Case, error) {
	query := `
		SELECT id, specialist_id, client_label, status, created_at, archived_at
		FROM cases
		WHERE specialist_id = $1 AND ($2 OR status = 'active')
		ORDER BY created_at DESC
	`
	rows, err := r.conn.Query(ctx, query, specialistID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []*identity.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Archive marks a case archived.
func (r *CaseRepository) Archive(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE cases SET status = 'archived', archived_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	tag, err := r.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to archive case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already archived or missing; distinguish for the caller.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanCase(row pgx.Row) (*identity.Case, error) {
	var (
		c      identity.Case
		status string
	)
	err := row.Scan(&c.ID, &c.SpecialistID, &c.ClientLabel, &status, &c.CreatedAt, &c.ArchivedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, identity.ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}
	c.Status = identity.CaseStatus(status)
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INVITE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// InviteRepository implements identity.InviteRepository for PostgreSQL.
type InviteRepository struct {
	conn *Connection
}

// NewInviteRepository creates a new InviteRepository.
func NewInviteRepository(conn *Connection) *InviteRepository {
	return &InviteRepository{conn: conn}
}

// Create inserts a new invite.
func (r *InviteRepository) Create(ctx context.Context, inv *identity.Invite) error {
	query := `
		INSERT INTO invites (token, creator_id, max_uses, used_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.conn.Exec(ctx, query,
		inv.Token, inv.CreatorID, inv.MaxUses, inv.UsedCount, inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// Consume atomically increments used_count while the invite is still usable.
// The guarded UPDATE is the synchronization point: concurrent consumers of a
// nearly exhausted invite race on it and only the winners get rows back.
func (r *InviteRepository) Consume(ctx context.Context, token string) (*identity.Invite, error) {
	query := `
		UPDATE invites
		SET used_count = used_count + 1
		WHERE token = $1 AND used_count < max_uses AND (expires_at IS NULL OR expires_at > NOW())
		RETURNING token, creator_id, max_uses, used_count, expires_at, created_at
	`
	row := r.conn.QueryRow(ctx, query, token)

	var inv identity.Invite
	err := row.Scan(&inv.Token, &inv.CreatorID, &inv.MaxUses, &inv.UsedCount, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		if !IsNoRows(err) {
			return nil, fmt.Errorf("failed to consume invite: %w", err)
		}
		// No usable row. Look the token up to tell "missing" from "spent".
		var exists bool
		checkErr := r.conn.QueryRow(ctx, `SELECT TRUE FROM invites WHERE token = $1`, token).Scan(&exists)
		if checkErr != nil {
			if IsNoRows(checkErr) {
				return nil, identity.ErrInviteNotFound
			}
			return nil, fmt.Errorf("failed to check invite: %w", checkErr)
		}
		return nil, identity.ErrInviteExhausted
	}
	return &inv, nil
}
