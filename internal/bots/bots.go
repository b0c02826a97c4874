// Package bots holds the handler capability shared by every hosted bot and
// the helpers their implementations lean on. One Handler per bot id; the
// webhook dispatcher routes updates here after secret check and dedup.
package bots

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/artifact"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/session"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// Handler processes one deduplicated Telegram update for one bot. Returned
// errors are logged by the dispatcher; they never turn into non-200
// responses.
type Handler interface {
	BotID() string
	Handle(ctx context.Context, up *telegram.Update) error
}

// ErrTryLater is the stock user-visible message for oracle outages.
const ErrTryLater = "Сервис временно недоступен. Попробуйте ещё раз через пару минут."

// Oracle is the AI capability the handlers depend on. *claude.Oracle
// satisfies it; tests substitute fakes.
type Oracle interface {
	// AskFast runs a prompt on the fast model.
	AskFast(ctx context.Context, system, user string, maxTokens int) (string, error)

	// Ask runs a prompt on the strong model.
	Ask(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Session wraps the FSM row of one (bot, chat) pair with typed payload
// access. Handlers load it, mutate, and save once per turn.
type Session struct {
	botID string
	repo  session.StateRepository

	ChatID    int64
	UserID    identity.TelegramID
	Role      identity.Role
	State     string
	ContextID *uuid.UUID
	payload   json.RawMessage

	found bool
}

// LoadSession fetches the FSM row; a missing row yields an empty session
// with Found() == false.
func LoadSession(ctx context.Context, repo session.StateRepository, botID string, chatID int64) (*Session, error) {
	s := &Session{botID: botID, repo: repo, ChatID: chatID}

	st, err := repo.Load(ctx, botID, chatID)
	if err != nil {
		if err == session.ErrStateNotFound {
			return s, nil
		}
		return nil, err
	}
	s.UserID = st.UserID
	s.Role = st.Role
	s.State = st.Name
	s.ContextID = st.ContextID
	s.payload = st.Payload
	s.found = true
	return s, nil
}

// Found reports whether a row existed at load time.
func (s *Session) Found() bool { return s.found }

// DecodePayload unmarshals the opaque payload into v. An empty payload
// leaves v untouched.
func (s *Session) DecodePayload(v interface{}) error {
	if len(s.payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(s.payload, v); err != nil {
		return fmt.Errorf("decode session payload: %w", err)
	}
	return nil
}

// Save serializes v into the payload and upserts the row.
func (s *Session) Save(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}
	s.payload = payload

	return s.repo.Upsert(ctx, &session.State{
		BotID:     s.botID,
		ChatID:    s.ChatID,
		UserID:    s.UserID,
		Role:      s.Role,
		Name:      s.State,
		Payload:   payload,
		ContextID: s.ContextID,
	})
}

// Reset deletes the FSM row.
func (s *Session) Reset(ctx context.Context) error {
	return s.repo.Delete(ctx, s.botID, s.ChatID)
}

// SaveArtifact persists a run output best-effort. The user already has their
// result in chat; persistence failures are logged and swallowed, and retried
// deliveries dedup on (run_id, service_id).
func SaveArtifact(ctx context.Context, repo artifact.Repository, log *logger.Logger, a *artifact.Artifact) {
	if a.RunID == uuid.Nil || a.ContextID == uuid.Nil {
		log.Warn("artifact skipped, missing run or context id",
			logger.ServiceID(a.ServiceID))
		return
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = timeutil.Now()
	}
	if err := repo.Save(ctx, a); err != nil {
		log.Error("artifact save failed",
			logger.ServiceID(a.ServiceID), logger.RunID(a.RunID.String()), logger.Err(err))
	}
}
