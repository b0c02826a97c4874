package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// Service issues and verifies link tokens against the repository.
type Service struct {
	repo Repository

	// toolServices is the set of service ids tokens may be issued for.
	toolServices map[string]bool
}

// NewService creates a link service accepting the given tool service ids.
func NewService(repo Repository, toolServices []string) *Service {
	set := make(map[string]bool, len(toolServices))
	for _, id := range toolServices {
		set[id] = true
	}
	return &Service{repo: repo, toolServices: set}
}

// Issue creates and persists a fresh token.
func (s *Service) Issue(ctx context.Context, serviceID string, contextID uuid.UUID, role identity.Role, subjectID identity.TelegramID) (*Token, error) {
	if !s.toolServices[serviceID] {
		return nil, fmt.Errorf("link: unknown service %q", serviceID)
	}
	if !role.IsValid() {
		return nil, identity.ErrInvalidRole
	}
	if role == identity.RoleClient && serviceID != ServiceScreen {
		return nil, ErrClientService
	}

	t := New(serviceID, contextID, role, subjectID, timeutil.Now())
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("link: create token: %w", err)
	}
	return t, nil
}

// Verify checks and consumes a raw token. Exactly one concurrent caller can
// succeed; the rest observe ErrAlreadyUsed from the repository CAS.
func (s *Service) Verify(ctx context.Context, raw string, callerServiceID string, callerSubjectID identity.TelegramID) (*Token, error) {
	jti, err := ParseJti(raw)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetByJti(ctx, jti)
	if err != nil {
		return nil, err
	}

	if err := t.Validate(timeutil.Now(), callerServiceID, callerSubjectID); err != nil {
		return nil, err
	}

	if err := s.repo.Consume(ctx, jti); err != nil {
		return nil, err
	}

	now := timeutil.Now()
	t.UsedAt = &now
	return t, nil
}

// IsVerificationError reports whether err is one of the user-visible
// verification reasons (as opposed to an infrastructure failure).
func IsVerificationError(err error) bool {
	for _, target := range []error{
		ErrInvalidFormat, ErrNotFound, ErrAlreadyUsed, ErrExpired,
		ErrWrongService, ErrWrongUser, ErrClientService,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
