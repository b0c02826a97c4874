// Package link implements the one-shot deep-link token lifecycle.
// A token transfers a (context, role, user) tuple from the front-office bot
// to a tool bot; it is single-use, time-bounded, service-specific, and bound
// to one Telegram user.
package link

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
)

// TTL is how long an issued token stays valid.
const TTL = 24 * time.Hour

// ServiceScreen is the only service a client-role token may address.
const ServiceScreen = "screen"

// Token is one issued deep-link pass. The jti is the opaque string embedded
// in the t.me deep link; run_id ties the handoff to at most one artifact per
// service via UNIQUE(service_id, run_id).
type Token struct {
	Jti       uuid.UUID
	RunID     uuid.UUID
	ServiceID string
	ContextID uuid.UUID
	Role      identity.Role
	SubjectID identity.TelegramID
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// New issues a fresh token with new jti and run_id.
func New(serviceID string, contextID uuid.UUID, role identity.Role, subjectID identity.TelegramID, now time.Time) *Token {
	return &Token{
		Jti:       uuid.New(),
		RunID:     uuid.New(),
		ServiceID: serviceID,
		ContextID: contextID,
		Role:      role,
		SubjectID: subjectID,
		ExpiresAt: now.Add(TTL),
		CreatedAt: now,
	}
}

// StartParam returns the payload to embed in the bot's /start deep link.
func (t *Token) StartParam() string {
	return t.Jti.String()
}

// Validate checks every verification rule except the one-shot consume, which
// is a compare-and-swap on used_at performed by the repository. The order
// matches the verification sequence: used, expired, service, subject,
// role/service compatibility.
func (t *Token) Validate(now time.Time, callerServiceID string, callerSubjectID identity.TelegramID) error {
	if t.UsedAt != nil {
		return ErrAlreadyUsed
	}
	if now.After(t.ExpiresAt) {
		return ErrExpired
	}
	if t.ServiceID != callerServiceID {
		return ErrWrongService
	}
	if t.SubjectID != callerSubjectID {
		return ErrWrongUser
	}
	if t.Role == identity.RoleClient && t.ServiceID != ServiceScreen {
		return ErrClientService
	}
	return nil
}

// ParseJti parses a raw deep-link payload into a jti.
func ParseJti(raw string) (uuid.UUID, error) {
	jti, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidFormat
	}
	return jti, nil
}

// Verification errors, each mapping to a user-visible reason.
var (
	ErrInvalidFormat = errors.New("link: invalid token format")
	ErrNotFound      = errors.New("link: token not found")
	ErrAlreadyUsed   = errors.New("link: token already used")
	ErrExpired       = errors.New("link: token expired")
	ErrWrongService  = errors.New("link: token issued for another service")
	ErrWrongUser     = errors.New("link: token issued for another user")
	ErrClientService = errors.New("link: client token cannot address non-screen service")
)
