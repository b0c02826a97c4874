package screen

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/screening"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

func newAssessment() *screening.Assessment {
	return screening.NewAssessment(uuid.New(), uuid.New(), nil, 1, 2, time.Now().UTC())
}

func TestAccumulate_FeedsSelectedOptions(t *testing.T) {
	a := newAssessment()
	o := NewOrchestrator(a, nil, logger.Default())
	scr := screening.Phase1Bank()[0]

	delta := o.Accumulate(scr, []string{scr.Options[0].ID, scr.Options[2].ID})

	assert.Len(t, a.Engine.ResponseHistory, 2)
	require.Contains(t, delta, "A1")
	// The first option pushes A1 positive.
	assert.Greater(t, a.Engine.AxisVector["A1"], 0.0)
	assert.Greater(t, delta["A1"], 0.0)
}

func TestAccumulate_IgnoresUnknownOptionIDs(t *testing.T) {
	a := newAssessment()
	o := NewOrchestrator(a, nil, logger.Default())
	scr := screening.Phase1Bank()[0]

	delta := o.Accumulate(scr, []string{"bogus"})

	assert.Empty(t, a.Engine.ResponseHistory)
	for _, axis := range screening.Axes {
		assert.Zero(t, delta[axis])
	}
}

func TestFallbackNode_PrefersUnvisitedAmbiguityZone(t *testing.T) {
	a := newAssessment()
	o := NewOrchestrator(a, nil, logger.Default())

	// Empty engine: every cell is ambiguous, canonical order picks A1_L0.
	assert.Equal(t, "A1_L0", o.TargetNode())

	a.MarkVisited("A1_L0")
	assert.Equal(t, "A1_L1", o.TargetNode())
}

func TestFallbackNode_ExhaustedZonesFallToBank(t *testing.T) {
	a := newAssessment()
	for _, node := range screening.Phase2Nodes() {
		a.MarkVisited(node)
	}
	o := NewOrchestrator(a, nil, logger.Default())

	// Everything visited: the terminal fallback is the bank's first node.
	assert.Equal(t, screening.Phase2Nodes()[0], o.TargetNode())
}

func TestClampWeights(t *testing.T) {
	got := clampWeights(map[string]float64{"A1": 1.5, "A2": -2, "A3": 0.3})
	assert.Equal(t, 1.0, got["A1"])
	assert.Equal(t, -1.0, got["A2"])
	assert.Equal(t, 0.3, got["A3"])
}

func TestRenderMatrix_CanonicalOrder(t *testing.T) {
	m := map[string]float64{"A2": 0.5, "A1": -0.25, "L0": 1}
	assert.Equal(t, "A1=-0.250 A2=0.500 L0=1.000", renderMatrix(m))
}

func TestMarshalReportRoundTrip(t *testing.T) {
	r := &Report{
		AssessmentID:  uuid.New().String(),
		AxisVector:    map[string]float64{"A1": 0.5},
		DominantCells: []string{"A1_L0"},
		Phases:        ReportPhases{Phase1Screens: 6, AdaptiveRounds: 2, ConstructedRounds: 1},
	}
	raw, err := MarshalReport(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"phase1_screens":6`)
}
