package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/screening"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCREENING ASSESSMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentRepository implements screening.AssessmentRepository for
// PostgreSQL. The engine state and visited-node set go into JSONB columns;
// the row is rewritten whole after every accumulated response.
type AssessmentRepository struct {
	conn *Connection
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(conn *Connection) *AssessmentRepository {
	return &AssessmentRepository{conn: conn}
}

const assessmentColumns = `
	id, run_id, context_id, link_token_jti, specialist_telegram_id, client_telegram_id,
	status, phase, phase1_index, phase2_questions, phase3_questions,
	engine_state, visited_nodes, report_json, report_text,
	created_at, updated_at, completed_at
`

// Create inserts a new run.
func (r *AssessmentRepository) Create(ctx context.Context, a *screening.Assessment) error {
	engineJSON, visitedJSON, err := marshalAssessmentState(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO screening_assessments (` + assessmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.conn.Exec(ctx, query,
		a.ID, a.RunID, a.ContextID, a.LinkTokenJti,
		int64(a.SpecialistTelegramID), int64(a.ClientTelegramID),
		string(a.Status), a.Phase, a.Phase1Index, a.AdaptiveRounds, a.ConstructedRounds,
		engineJSON, visitedJSON, nullableJSON(a.ReportJSON), a.ReportText,
		a.CreatedAt, a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

// GetByRunID returns the run or screening.ErrAssessmentNotFound.
func (r *AssessmentRepository) GetByRunID(ctx context.Context, runID uuid.UUID) (*screening.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM screening_assessments WHERE run_id = $1`
	row := r.conn.QueryRow(ctx, query, runID)
	return scanAssessment(row)
}

// Update writes the full run state, advancing updated_at.
func (r *AssessmentRepository) Update(ctx context.Context, a *screening.Assessment) error {
	engineJSON, visitedJSON, err := marshalAssessmentState(a)
	if err != nil {
		return err
	}
	a.UpdatedAt = timeutil.Now()

	query := `
		UPDATE screening_assessments SET
			status = $2,
			phase = $3,
			phase1_index = $4,
			phase2_questions = $5,
			phase3_questions = $6,
			engine_state = $7,
			visited_nodes = $8,
			report_json = $9,
			report_text = $10,
			updated_at = $11,
			completed_at = $12
		WHERE id = $1
	`
	tag, err := r.conn.Exec(ctx, query,
		a.ID,
		string(a.Status), a.Phase, a.Phase1Index, a.AdaptiveRounds, a.ConstructedRounds,
		engineJSON, visitedJSON, nullableJSON(a.ReportJSON), a.ReportText,
		a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return screening.ErrAssessmentNotFound
	}
	return nil
}

func marshalAssessmentState(a *screening.Assessment) ([]byte, []byte, error) {
	engineJSON, err := json.Marshal(a.Engine)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal engine state: %w", err)
	}
	visited := a.VisitedNodes
	if visited == nil {
		visited = []string{}
	}
	visitedJSON, err := json.Marshal(visited)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal visited nodes: %w", err)
	}
	return engineJSON, visitedJSON, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func scanAssessment(row pgx.Row) (*screening.Assessment, error) {
	var (
		a            screening.Assessment
		specialistID int64
		clientID     int64
		status       string
		engineJSON   []byte
		visitedJSON  []byte
		reportJSON   []byte
	)
	err := row.Scan(
		&a.ID, &a.RunID, &a.ContextID, &a.LinkTokenJti, &specialistID, &clientID,
		&status, &a.Phase, &a.Phase1Index, &a.AdaptiveRounds, &a.ConstructedRounds,
		&engineJSON, &visitedJSON, &reportJSON, &a.ReportText,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, screening.ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}

	a.SpecialistTelegramID = identity.TelegramID(specialistID)
	a.ClientTelegramID = identity.TelegramID(clientID)
	a.Status = screening.Status(status)
	if err := json.Unmarshal(engineJSON, &a.Engine); err != nil {
		return nil, fmt.Errorf("failed to unmarshal engine state: %w", err)
	}
	if err := json.Unmarshal(visitedJSON, &a.VisitedNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal visited nodes: %w", err)
	}
	if len(reportJSON) > 0 {
		a.ReportJSON = reportJSON
	}
	return &a, nil
}
