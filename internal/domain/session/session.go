// Package session contains the per-chat FSM state row and the update
// deduplication key - the two substrate tables every bot shares.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
)

// State is the durable conversational state of one (bot_id, chat_id) pair.
// Payload is opaque to the substrate; only the handler that wrote it may
// interpret it.
type State struct {
	BotID     string
	ChatID    int64
	UserID    identity.TelegramID
	Role      identity.Role
	Name      string
	Payload   json.RawMessage
	ContextID *uuid.UUID
	UpdatedAt time.Time
}

// ErrStateNotFound is returned when no FSM row exists for the chat.
var ErrStateNotFound = errors.New("session: fsm state not found")

// StateRepository is the FSM store. Upserts are last-writer-wins: Telegram
// guarantees per-chat ordering, so two live handlers for the same
// (bot_id, chat_id) cannot occur in practice.
type StateRepository interface {
	// Load returns the state or ErrStateNotFound.
	Load(ctx context.Context, botID string, chatID int64) (*State, error)

	// Upsert writes the state atomically, advancing updated_at.
	Upsert(ctx context.Context, st *State) error

	// Delete removes the state row. Used when a session is reset.
	Delete(ctx context.Context, botID string, chatID int64) error
}

// DedupRepository is the exactly-once gate. One row per (bot_id, update_id);
// INSERT ... ON CONFLICT DO NOTHING is the sole synchronization point.
type DedupRepository interface {
	// Insert records the delivery and reports whether the row was new.
	// false means the update is a duplicate and must be dropped.
	Insert(ctx context.Context, botID string, updateID int64, chatID int64) (bool, error)
}
