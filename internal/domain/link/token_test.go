package link

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
)

func TestNew_SetsExpiryAndIdentifiers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctxID := uuid.New()

	tok := New("screen", ctxID, identity.RoleSpecialist, 42, now)

	assert.NotEqual(t, uuid.Nil, tok.Jti)
	assert.NotEqual(t, uuid.Nil, tok.RunID)
	assert.NotEqual(t, tok.Jti, tok.RunID)
	assert.Equal(t, ctxID, tok.ContextID)
	assert.Equal(t, now.Add(TTL), tok.ExpiresAt)
	assert.Nil(t, tok.UsedAt)
	assert.Equal(t, tok.Jti.String(), tok.StartParam())
}

func TestValidate_Order(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-time.Hour)

	base := func() *Token {
		return New("screen", uuid.New(), identity.RoleSpecialist, 42, now)
	}

	tests := []struct {
		name    string
		mutate  func(*Token)
		service string
		subject identity.TelegramID
		at      time.Time
		wantErr error
	}{
		{
			name:    "valid",
			mutate:  func(*Token) {},
			service: "screen", subject: 42, at: now,
			wantErr: nil,
		},
		{
			name:    "already used wins over expired",
			mutate:  func(tok *Token) { tok.UsedAt = &used; tok.ExpiresAt = now.Add(-time.Minute) },
			service: "screen", subject: 42, at: now,
			wantErr: ErrAlreadyUsed,
		},
		{
			name:    "expired wins over wrong service",
			mutate:  func(tok *Token) { tok.ExpiresAt = now.Add(-time.Minute) },
			service: "simulator", subject: 42, at: now,
			wantErr: ErrExpired,
		},
		{
			name:    "wrong service wins over wrong user",
			mutate:  func(*Token) {},
			service: "simulator", subject: 99, at: now,
			wantErr: ErrWrongService,
		},
		{
			name:    "wrong user",
			mutate:  func(*Token) {},
			service: "screen", subject: 99, at: now,
			wantErr: ErrWrongUser,
		},
		{
			name:    "not expired at the boundary",
			mutate:  func(*Token) {},
			service: "screen", subject: 42, at: now.Add(TTL),
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := base()
			tt.mutate(tok)
			err := tok.Validate(tt.at, tt.service, tt.subject)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ClientTokenOnlyForScreen(t *testing.T) {
	now := time.Now().UTC()
	tok := New("interpretator", uuid.New(), identity.RoleClient, 42, now)

	err := tok.Validate(now, "interpretator", 42)
	assert.ErrorIs(t, err, ErrClientService)

	tok = New(ServiceScreen, uuid.New(), identity.RoleClient, 42, now)
	assert.NoError(t, tok.Validate(now, ServiceScreen, 42))
}

func TestParseJti(t *testing.T) {
	id := uuid.New()

	got, err := ParseJti(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseJti("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseJti("")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestIsVerificationError(t *testing.T) {
	for _, err := range []error{
		ErrInvalidFormat, ErrNotFound, ErrAlreadyUsed, ErrExpired,
		ErrWrongService, ErrWrongUser, ErrClientService,
	} {
		assert.True(t, IsVerificationError(err), err.Error())
	}
	assert.False(t, IsVerificationError(assert.AnError))
	assert.False(t, IsVerificationError(nil))
}
