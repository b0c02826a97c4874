// Package simulation contains the specialist supervision profile: a running
// aggregate over completed training sessions. The per-session metrics (CCI,
// TSI) live with the simulator handler; this package only accumulates them.
package simulation

import (
	"context"
	"time"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
)

// SessionResult is the metric set of one completed training session.
type SessionResult struct {
	TSI         float64
	GreenRatio  float64
	YellowRatio float64
	RedRatio    float64
	TrustDelta  float64
}

// Profile is the running average of a specialist's session results.
type Profile struct {
	SpecialistTelegramID identity.TelegramID
	SessionsCount        int
	AvgTSI               float64
	AvgGreenRatio        float64
	AvgYellowRatio       float64
	AvgRedRatio          float64
	AvgTrustDelta        float64
	UpdatedAt            time.Time
}

// Record folds one session result into the running averages.
func (p *Profile) Record(res SessionResult, now time.Time) {
	n := float64(p.SessionsCount)
	fold := func(avg, x float64) float64 {
		return (avg*n + x) / (n + 1)
	}
	p.AvgTSI = fold(p.AvgTSI, res.TSI)
	p.AvgGreenRatio = fold(p.AvgGreenRatio, res.GreenRatio)
	p.AvgYellowRatio = fold(p.AvgYellowRatio, res.YellowRatio)
	p.AvgRedRatio = fold(p.AvgRedRatio, res.RedRatio)
	p.AvgTrustDelta = fold(p.AvgTrustDelta, res.TrustDelta)
	p.SessionsCount++
	p.UpdatedAt = now
}

// ProfileRepository persists supervision profiles, one row per specialist.
type ProfileRepository interface {
	// Get returns the profile, or a zero-valued profile when the specialist
	// has no recorded sessions yet.
	Get(ctx context.Context, specialist identity.TelegramID) (*Profile, error)

	// Upsert writes the full profile row.
	Upsert(ctx context.Context, p *Profile) error
}
