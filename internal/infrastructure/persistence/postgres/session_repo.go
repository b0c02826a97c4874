package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/session"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FSM STATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StateRepository implements session.StateRepository for PostgreSQL.
type StateRepository struct {
	conn *Connection
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(conn *Connection) *StateRepository {
	return &StateRepository{conn: conn}
}

// Load returns the FSM state row or session.ErrStateNotFound.
func (r *StateRepository) Load(ctx context.Context, botID string, chatID int64) (*session.State, error) {
	query := `
		SELECT bot_id, chat_id, user_id, role, state, state_payload, context_id, updated_at
		FROM fsm_states
		WHERE bot_id = $1 AND chat_id = $2
	`
	row := r.conn.QueryRow(ctx, query, botID, chatID)

	var (
		st      session.State
		userID  int64
		role    string
		payload []byte
	)
	err := row.Scan(&st.BotID, &st.ChatID, &userID, &role, &st.Name, &payload, &st.ContextID, &st.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, session.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to scan fsm state: %w", err)
	}
	st.UserID = identity.TelegramID(userID)
	st.Role = identity.Role(role)
	st.Payload = payload
	return &st, nil
}

// Upsert writes the full state row, last writer wins.
func (r *StateRepository) Upsert(ctx context.Context, st *session.State) error {
	payload := st.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO fsm_states (bot_id, chat_id, user_id, role, state, state_payload, context_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bot_id, chat_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			role = EXCLUDED.role,
			state = EXCLUDED.state,
			state_payload = EXCLUDED.state_payload,
			context_id = EXCLUDED.context_id,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		st.BotID, st.ChatID, int64(st.UserID), string(st.Role), st.Name,
		[]byte(payload), st.ContextID, timeutil.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fsm state: %w", err)
	}
	return nil
}

// Delete removes the state row. Deleting a missing row is not an error.
func (r *StateRepository) Delete(ctx context.Context, botID string, chatID int64) error {
	query := `DELETE FROM fsm_states WHERE bot_id = $1 AND chat_id = $2`
	if _, err := r.conn.Exec(ctx, query, botID, chatID); err != nil {
		return fmt.Errorf("failed to delete fsm state: %w", err)
	}
	return nil
}

// PurgeStale deletes state rows not touched since the cutoff.
func (r *StateRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM fsm_states WHERE updated_at < $1`
	tag, err := r.conn.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale fsm states: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE DEDUP REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DedupRepository implements session.DedupRepository for PostgreSQL.
type DedupRepository struct {
	conn *Connection
}

// NewDedupRepository creates a new DedupRepository.
func NewDedupRepository(conn *Connection) *DedupRepository {
	return &DedupRepository{conn: conn}
}

// Insert records the delivery. RowsAffected() == 0 means the (bot_id,
// update_id) pair was already seen and the update must be dropped.
func (r *DedupRepository) Insert(ctx context.Context, botID string, updateID int64, chatID int64) (bool, error) {
	query := `
		INSERT INTO update_dedup (bot_id, update_id, chat_id, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bot_id, update_id) DO NOTHING
	`
	tag, err := r.conn.Exec(ctx, query, botID, updateID, chatID, timeutil.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert dedup row: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeBefore deletes dedup rows received before the cutoff.
func (r *DedupRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM update_dedup WHERE received_at < $1`
	tag, err := r.conn.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dedup rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
