package link

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists link tokens.
type Repository interface {
	Create(ctx context.Context, t *Token) error

	// GetByJti returns the token or ErrNotFound.
	GetByJti(ctx context.Context, jti uuid.UUID) (*Token, error)

	// Consume sets used_at on the token iff it is still NULL, returning
	// ErrAlreadyUsed when another caller won the race. This is the CAS that
	// makes the token one-shot under concurrent double delivery.
	Consume(ctx context.Context, jti uuid.UUID) error
}
