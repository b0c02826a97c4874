// Package artifact contains the append-only run-output model.
// One run produces at most one artifact per service; the UNIQUE(run_id,
// service_id) constraint plus ON CONFLICT DO NOTHING makes webhook retries
// idempotent.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ListLimit is how many artifacts list queries return (newest first).
const ListLimit = 20

// Artifact is the persisted structured output of one completed run.
type Artifact struct {
	ID                   uuid.UUID
	ContextID            uuid.UUID
	ServiceID            string
	RunID                uuid.UUID
	SpecialistTelegramID int64
	Payload              json.RawMessage
	Summary              string
	CreatedAt            time.Time
}

// Summary form returned by list queries; payload omitted.
type SummaryView struct {
	ID        uuid.UUID
	ContextID uuid.UUID
	ServiceID string
	RunID     uuid.UUID
	Summary   string
	CreatedAt time.Time
}

// ErrNotFound is returned when an artifact id does not exist.
var ErrNotFound = errors.New("artifact: not found")

// Repository persists artifacts.
type Repository interface {
	// Save inserts the artifact, silently doing nothing when a row with the
	// same (run_id, service_id) already exists.
	Save(ctx context.Context, a *Artifact) error

	// ListByContext returns the newest ListLimit artifacts for a context,
	// optionally filtered by service.
	ListByContext(ctx context.Context, contextID uuid.UUID, serviceID string) ([]SummaryView, error)

	// GetByID returns the full artifact or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Artifact, error)
}
