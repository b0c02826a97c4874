// Package jobs contains the gateway's maintenance jobs. All three are
// retention purges: the webhook dedup table and the link token table grow
// with every delivery and every issued link, and abandoned bot sessions
// otherwise live forever.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// Retention windows. Dedup rows only matter while Telegram may still retry
// a delivery; expired link tokens are kept a week for support inquiries.
const (
	DedupRetention   = 48 * time.Hour
	LinkRetention    = 7 * 24 * time.Hour
	SessionRetention = 30 * 24 * time.Hour
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE LINK TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// LinkPurger deletes link tokens whose expiry is older than the cutoff.
type LinkPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeLinkTokens removes link tokens that expired more than LinkRetention
// ago. A token past its expiry can never validate again, used or not.
type PurgeLinkTokens struct {
	Repo LinkPurger
	Log  *logger.Logger
}

// Name implements scheduler.Job.
func (j *PurgeLinkTokens) Name() string { return "purge_link_tokens" }

// Run implements scheduler.Job.
func (j *PurgeLinkTokens) Run(ctx context.Context) error {
	cutoff := timeutil.Now().Add(-LinkRetention)
	n, err := j.Repo.PurgeExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge link tokens: %w", err)
	}
	if n > 0 {
		j.Log.Info("purged link tokens", logger.Int64("deleted", n))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PURGE DEDUP ROWS
// ══════════════════════════════════════════════════════════════════════════════

// DedupPurger deletes dedup rows received before the cutoff.
type DedupPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeDedup removes webhook dedup rows older than DedupRetention. Telegram
// stops retrying a delivery long before that.
type PurgeDedup struct {
	Repo DedupPurger
	Log  *logger.Logger
}

// Name implements scheduler.Job.
func (j *PurgeDedup) Name() string { return "purge_dedup" }

// Run implements scheduler.Job.
func (j *PurgeDedup) Run(ctx context.Context) error {
	cutoff := timeutil.Now().Add(-DedupRetention)
	n, err := j.Repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge dedup rows: %w", err)
	}
	if n > 0 {
		j.Log.Info("purged dedup rows", logger.Int64("deleted", n))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PURGE STALE SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// SessionPurger deletes session state rows untouched since the cutoff.
type SessionPurger interface {
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeSessions removes bot sessions with no activity for SessionRetention.
// A specialist returning after that simply starts from a fresh link.
type PurgeSessions struct {
	Repo SessionPurger
	Log  *logger.Logger
}

// Name implements scheduler.Job.
func (j *PurgeSessions) Name() string { return "purge_sessions" }

// Run implements scheduler.Job.
func (j *PurgeSessions) Run(ctx context.Context) error {
	cutoff := timeutil.Now().Add(-SessionRetention)
	n, err := j.Repo.PurgeStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge stale sessions: %w", err)
	}
	if n > 0 {
		j.Log.Info("purged stale sessions", logger.Int64("deleted", n))
	}
	return nil
}
