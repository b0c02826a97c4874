package screening

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
)

// Status of one screening run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Phase numbers of the screening flow.
const (
	PhaseFixed       = 1
	PhaseAdaptive    = 2
	PhaseConstructed = 3
)

// Round limits per phase and the polarization level that lets a run jump
// ahead of its remaining rounds.
const (
	MaxAdaptiveRounds    = 3
	MaxConstructedRounds = 5
	JumpThreshold        = 0.85
)

// Assessment is one client screening run. RunID doubles as the idempotency
// key for the artifact the run eventually produces.
type Assessment struct {
	ID                   uuid.UUID
	RunID                uuid.UUID
	ContextID            uuid.UUID
	LinkTokenJti         *uuid.UUID
	SpecialistTelegramID identity.TelegramID
	ClientTelegramID     identity.TelegramID
	Status               Status
	Phase                int

	// Phase progress counters.
	Phase1Index       int
	AdaptiveRounds    int
	ConstructedRounds int

	// Engine holds the full vector state, serialized as one JSONB column.
	Engine EngineState

	// VisitedNodes are the nodes already probed in phases 2 and 3. A node is
	// never probed twice within one run.
	VisitedNodes []string

	ReportJSON json.RawMessage
	ReportText string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewAssessment starts a run with an empty engine state. The run id comes
// from the link token so artifact writes stay idempotent across retries.
func NewAssessment(runID, contextID uuid.UUID, jti *uuid.UUID, specialist, client identity.TelegramID, now time.Time) *Assessment {
	return &Assessment{
		ID:                   uuid.New(),
		RunID:                runID,
		ContextID:            contextID,
		LinkTokenJti:         jti,
		SpecialistTelegramID: specialist,
		ClientTelegramID:     client,
		Status:               StatusCreated,
		Phase:                PhaseFixed,
		Engine:               NewEngineState(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Visited reports whether a node was already probed this run.
func (a *Assessment) Visited(node string) bool {
	for _, v := range a.VisitedNodes {
		if v == node {
			return true
		}
	}
	return false
}

// MarkVisited records a probed node.
func (a *Assessment) MarkVisited(node string) {
	if !a.Visited(node) {
		a.VisitedNodes = append(a.VisitedNodes, node)
	}
}

// ErrAssessmentNotFound is returned when no run exists for the lookup key.
var ErrAssessmentNotFound = errors.New("screening: assessment not found")

// AssessmentRepository persists screening runs. The whole run state is
// written back after each response so a restart resumes mid-phase.
type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error

	// GetByRunID returns the run or ErrAssessmentNotFound.
	GetByRunID(ctx context.Context, runID uuid.UUID) (*Assessment, error)

	// Update writes the full run state, advancing updated_at.
	Update(ctx context.Context, a *Assessment) error
}
