package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists users.
type UserRepository interface {
	// GetOrCreate returns the user with the given telegram id, creating it
	// with the given role on first contact.
	GetOrCreate(ctx context.Context, telegramID TelegramID, role Role) (*User, error)

	// GetByTelegramID returns the user or ErrUserNotFound.
	GetByTelegramID(ctx context.Context, telegramID TelegramID) (*User, error)

	// GetByID returns the user or ErrUserNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// CaseRepository persists cases (contexts).
type CaseRepository interface {
	Create(ctx context.Context, c *Case) error

	// GetByID returns the case or ErrCaseNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)

	// ListBySpecialist returns the specialist's cases, newest first.
	ListBySpecialist(ctx context.Context, specialistID uuid.UUID, includeArchived bool) ([]*Case, error)

	// Archive marks a case archived.
	Archive(ctx context.Context, id uuid.UUID) error
}

// InviteRepository persists invites.
type InviteRepository interface {
	Create(ctx context.Context, inv *Invite) error

	// Consume atomically increments used_count if the invite is still
	// usable; returns ErrInviteNotFound or ErrInviteExhausted otherwise.
	Consume(ctx context.Context, token string) (*Invite, error)
}
