package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

type purgeStub struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (s *purgeStub) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func (s *purgeStub) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func (s *purgeStub) PurgeStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestPurgeLinkTokens_CutoffUsesRetention(t *testing.T) {
	stub := &purgeStub{deleted: 3}
	job := &PurgeLinkTokens{Repo: stub, Log: logger.Default()}

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, timeutil.Now().Add(-LinkRetention), stub.cutoff, time.Minute)
	assert.Equal(t, "purge_link_tokens", job.Name())
}

func TestPurgeDedup_CutoffUsesRetention(t *testing.T) {
	stub := &purgeStub{}
	job := &PurgeDedup{Repo: stub, Log: logger.Default()}

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, timeutil.Now().Add(-DedupRetention), stub.cutoff, time.Minute)
	assert.Equal(t, "purge_dedup", job.Name())
}

func TestPurgeSessions_CutoffUsesRetention(t *testing.T) {
	stub := &purgeStub{}
	job := &PurgeSessions{Repo: stub, Log: logger.Default()}

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, timeutil.Now().Add(-SessionRetention), stub.cutoff, time.Minute)
	assert.Equal(t, "purge_sessions", job.Name())
}

func TestPurge_WrapsRepoErrors(t *testing.T) {
	cause := errors.New("connection reset")
	stub := &purgeStub{err: cause}

	assert.ErrorIs(t, (&PurgeLinkTokens{Repo: stub, Log: logger.Default()}).Run(context.Background()), cause)
	assert.ErrorIs(t, (&PurgeDedup{Repo: stub, Log: logger.Default()}).Run(context.Background()), cause)
	assert.ErrorIs(t, (&PurgeSessions{Repo: stub, Log: logger.Default()}).Run(context.Background()), cause)
}
