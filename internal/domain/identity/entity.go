// Package identity contains the user, case (context), and invite model.
// This is the leaf persistence domain: row lookup, no behavior beyond
// validity checks and lifecycle transitions.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TelegramID is the identifier asserted by Telegram's transport. It is the
// only end-user authentication the system relies on.
type TelegramID int64

// IsValid reports whether the id is usable.
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Role separates specialists (who own cases) from clients (who only ever
// reach the screen service through a client link token).
type Role string

const (
	RoleSpecialist Role = "specialist"
	RoleClient     Role = "client"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	return r == RoleSpecialist || r == RoleClient
}

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

// CaseStatus is the case lifecycle state. Cases are archived, never deleted.
type CaseStatus string

const (
	CaseActive   CaseStatus = "active"
	CaseArchived CaseStatus = "archived"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// User is created on first contact and never deleted.
type User struct {
	ID         uuid.UUID
	TelegramID TelegramID
	Role       Role
	Status     UserStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewUser creates a user with a fresh id.
func NewUser(telegramID TelegramID, role Role, now time.Time) (*User, error) {
	if !telegramID.IsValid() {
		return nil, ErrInvalidTelegramID
	}
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}
	return &User{
		ID:         uuid.New(),
		TelegramID: telegramID,
		Role:       role,
		Status:     UserActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Case is a specialist-owned aggregate of sessions about one client; it is
// the "context" that artifacts, link tokens, and screening assessments all
// hang off.
type Case struct {
	ID           uuid.UUID
	SpecialistID uuid.UUID
	ClientLabel  string
	Status       CaseStatus
	CreatedAt    time.Time
	ArchivedAt   *time.Time
}

// NewCase creates an active case for a specialist.
func NewCase(specialistID uuid.UUID, clientLabel string, now time.Time) (*Case, error) {
	clientLabel = strings.TrimSpace(clientLabel)
	if clientLabel == "" {
		return nil, ErrEmptyClientLabel
	}
	return &Case{
		ID:           uuid.New(),
		SpecialistID: specialistID,
		ClientLabel:  clientLabel,
		Status:       CaseActive,
		CreatedAt:    now,
	}, nil
}

// Archive marks the case archived. Idempotent.
func (c *Case) Archive(now time.Time) {
	if c.Status == CaseArchived {
		return
	}
	c.Status = CaseArchived
	c.ArchivedAt = &now
}

// Invite is an N-shot access grant that lets a new specialist register with
// the front-office bot.
type Invite struct {
	Token     string
	CreatorID uuid.UUID
	MaxUses   int
	UsedCount int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// inviteTokenBytes sizes the random invite token (8 bytes -> 11 url chars).
const inviteTokenBytes = 8

// NewInvite creates an invite with a fresh random token.
func NewInvite(creatorID uuid.UUID, maxUses int, ttl time.Duration, now time.Time) (*Invite, error) {
	if maxUses < 1 {
		return nil, ErrInvalidMaxUses
	}
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return &Invite{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		CreatorID: creatorID,
		MaxUses:   maxUses,
		UsedCount: 0,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// Usable reports whether the invite can still be consumed at the instant.
func (i *Invite) Usable(now time.Time) bool {
	return i.UsedCount < i.MaxUses && now.Before(i.ExpiresAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrInvalidTelegramID = errors.New("identity: invalid telegram id")
	ErrInvalidRole       = errors.New("identity: invalid role")
	ErrEmptyClientLabel  = errors.New("identity: client label is empty")
	ErrInvalidMaxUses    = errors.New("identity: max uses must be at least 1")

	ErrUserNotFound    = errors.New("identity: user not found")
	ErrCaseNotFound    = errors.New("identity: case not found")
	ErrInviteNotFound  = errors.New("identity: invite not found")
	ErrInviteExhausted = errors.New("identity: invite exhausted or expired")
)
