package link

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
)

// memRepo is an in-memory link.Repository with the same one-shot Consume
// semantics as the SQL implementation.
type memRepo struct {
	tokens map[uuid.UUID]*Token
}

func newMemRepo() *memRepo {
	return &memRepo{tokens: make(map[uuid.UUID]*Token)}
}

func (r *memRepo) Create(_ context.Context, t *Token) error {
	cp := *t
	r.tokens[t.Jti] = &cp
	return nil
}

func (r *memRepo) GetByJti(_ context.Context, jti uuid.UUID) (*Token, error) {
	t, ok := r.tokens[jti]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) Consume(_ context.Context, jti uuid.UUID) error {
	t, ok := r.tokens[jti]
	if !ok {
		return ErrNotFound
	}
	if t.UsedAt != nil {
		return ErrAlreadyUsed
	}
	now := time.Now().UTC()
	t.UsedAt = &now
	return nil
}

var toolServices = []string{"screen", "interpretator", "conceptualizator", "simulator"}

func TestService_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, toolServices)
	ctxID := uuid.New()

	tok, err := svc.Issue(ctx, "simulator", ctxID, identity.RoleSpecialist, 42)
	require.NoError(t, err)

	got, err := svc.Verify(ctx, tok.StartParam(), "simulator", 42)
	require.NoError(t, err)
	assert.Equal(t, tok.Jti, got.Jti)
	assert.Equal(t, tok.RunID, got.RunID)
	assert.Equal(t, ctxID, got.ContextID)
	assert.NotNil(t, got.UsedAt)
}

func TestService_VerifyIsOneShot(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), toolServices)

	tok, err := svc.Issue(ctx, "screen", uuid.New(), identity.RoleSpecialist, 42)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, tok.StartParam(), "screen", 42)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, tok.StartParam(), "screen", 42)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestService_VerifyRejectsWrongCaller(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, toolServices)

	tok, err := svc.Issue(ctx, "screen", uuid.New(), identity.RoleSpecialist, 42)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, tok.StartParam(), "interpretator", 42)
	assert.ErrorIs(t, err, ErrWrongService)

	_, err = svc.Verify(ctx, tok.StartParam(), "screen", 99)
	assert.ErrorIs(t, err, ErrWrongUser)

	// A failed verification must not consume the token.
	got, err := svc.Verify(ctx, tok.StartParam(), "screen", 42)
	require.NoError(t, err)
	assert.Equal(t, tok.Jti, got.Jti)
}

func TestService_VerifyUnknownAndMalformed(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), toolServices)

	_, err := svc.Verify(ctx, uuid.New().String(), "screen", 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Verify(ctx, "garbage", "screen", 42)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestService_IssueRejectsUnknownService(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), toolServices)

	_, err := svc.Issue(ctx, "pro", uuid.New(), identity.RoleSpecialist, 42)
	assert.Error(t, err)
}

func TestService_IssueClientRole(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), toolServices)

	_, err := svc.Issue(ctx, "simulator", uuid.New(), identity.RoleClient, 42)
	assert.ErrorIs(t, err, ErrClientService)

	tok, err := svc.Issue(ctx, ServiceScreen, uuid.New(), identity.RoleClient, 42)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleClient, tok.Role)
}
