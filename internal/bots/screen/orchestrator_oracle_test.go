package screen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/screening"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// fakeOracle replays canned replies: fast pops from fast, strong from
// strong. A set err fails every call.
type fakeOracle struct {
	fast   []string
	strong []string
	err    error

	fastCalls   int
	strongCalls int
}

func (f *fakeOracle) AskFast(_ context.Context, _, _ string, _ int) (string, error) {
	f.fastCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.pop(&f.fast), nil
}

func (f *fakeOracle) Ask(_ context.Context, _, _ string, _ int) (string, error) {
	f.strongCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.pop(&f.strong), nil
}

func (f *fakeOracle) pop(queue *[]string) string {
	if len(*queue) == 0 {
		return ""
	}
	reply := (*queue)[0]
	*queue = (*queue)[1:]
	return reply
}

// ──────────────────────────────────────────────────────────────────────────────
// Stop decision
// ──────────────────────────────────────────────────────────────────────────────

func TestShouldStopAdaptive_RoundBudgetBindsOracle(t *testing.T) {
	a := newAssessment()
	a.AdaptiveRounds = screening.MaxAdaptiveRounds
	oracle := &fakeOracle{fast: []string{`{"stop": false}`}}
	o := NewOrchestrator(a, oracle, logger.Default())

	stop := o.ShouldStopAdaptive(context.Background(), map[string]float64{"A1": 0.5})

	assert.True(t, stop, "spent round budget must end the phase")
	assert.Zero(t, oracle.fastCalls, "the budget check must not consult the oracle")
}

func TestShouldStopAdaptive_JumpThresholdStops(t *testing.T) {
	a := newAssessment()
	a.AdaptiveRounds = 1
	a.Engine.Confidence = screening.JumpThreshold
	oracle := &fakeOracle{fast: []string{`{"stop": false}`}}
	o := NewOrchestrator(a, oracle, logger.Default())

	assert.True(t, o.ShouldStopAdaptive(context.Background(), map[string]float64{"A1": 0.5}))
	assert.Zero(t, oracle.fastCalls)
}

func TestShouldStopAdaptive_OracleMayEndEarly(t *testing.T) {
	a := newAssessment()
	a.AdaptiveRounds = 1
	oracle := &fakeOracle{fast: []string{`{"stop": true}`}}
	o := NewOrchestrator(a, oracle, logger.Default())

	// Deltas well above the cutoff: only the oracle can say stop here.
	stop := o.ShouldStopAdaptive(context.Background(), map[string]float64{"A1": 0.5, "A2": 0.4})

	assert.True(t, stop)
	assert.Equal(t, 1, oracle.fastCalls)
}

func TestShouldStopAdaptive_OracleMayNotExtend(t *testing.T) {
	a := newAssessment()
	a.AdaptiveRounds = 1
	oracle := &fakeOracle{fast: []string{`{"stop": false}`}}
	o := NewOrchestrator(a, oracle, logger.Default())

	assert.False(t, o.ShouldStopAdaptive(context.Background(), map[string]float64{"A1": 0.5}))
}

func TestShouldStopAdaptive_OracleFailureLocalRule(t *testing.T) {
	a := newAssessment()
	a.AdaptiveRounds = 1
	down := errors.New("oracle down")

	o := NewOrchestrator(a, &fakeOracle{err: down}, logger.Default())
	// Every delta below the ambiguity cutoff: converged, stop.
	assert.True(t, o.ShouldStopAdaptive(context.Background(), map[string]float64{"A1": 0.05, "A2": -0.09}))
	// A delta still moving: keep probing.
	assert.False(t, o.ShouldStopAdaptive(context.Background(), map[string]float64{"A1": 0.5}))
}

// ──────────────────────────────────────────────────────────────────────────────
// Routing
// ──────────────────────────────────────────────────────────────────────────────

func TestRouteNode_OracleChoosesUnvisitedNode(t *testing.T) {
	a := newAssessment()
	oracle := &fakeOracle{fast: []string{"Следующий узел: A3_L2."}}
	o := NewOrchestrator(a, oracle, logger.Default())

	assert.Equal(t, "A3_L2", o.RouteNode(context.Background()))
}

func TestRouteNode_VisitedOracleChoiceFallsBack(t *testing.T) {
	a := newAssessment()
	a.MarkVisited("A3_L2")
	oracle := &fakeOracle{fast: []string{"A3_L2"}}
	o := NewOrchestrator(a, oracle, logger.Default())

	assert.Equal(t, "A1_L0", o.RouteNode(context.Background()))
}

func TestRouteNode_GarbageAndFailureFallBack(t *testing.T) {
	a := newAssessment()

	o := NewOrchestrator(a, &fakeOracle{fast: []string{"не могу выбрать"}}, logger.Default())
	assert.Equal(t, "A1_L0", o.RouteNode(context.Background()))

	o = NewOrchestrator(a, &fakeOracle{err: errors.New("oracle down")}, logger.Default())
	assert.Equal(t, "A1_L0", o.RouteNode(context.Background()))
}

// ──────────────────────────────────────────────────────────────────────────────
// Question construction
// ──────────────────────────────────────────────────────────────────────────────

func TestConstructQuestion_BuildsScreenFromOracle(t *testing.T) {
	a := newAssessment()
	reply := `{"text": "Как вы распределяете усилия?", "options": [
		{"text": "Вариант 1", "axis_weights": {"A1": 1.5}, "layer_weights": {"L0": 0.5}},
		{"text": "Вариант 2", "axis_weights": {"A1": -0.5}, "layer_weights": {"L1": 0.5}},
		{"text": "Вариант 3", "axis_weights": {"A2": 0.5}, "layer_weights": {"L2": 0.5}},
		{"text": "Вариант 4", "axis_weights": {"A2": -2}, "layer_weights": {"L3": 0.5}}
	]}`
	o := NewOrchestrator(a, &fakeOracle{strong: []string{reply}}, logger.Default())

	scr := o.ConstructQuestion(context.Background(), "A1_L0")

	assert.Equal(t, "p3_a1_l0_r1", scr.ID)
	assert.Equal(t, "Как вы распределяете усилия?", scr.Text)
	require.Len(t, scr.Options, 4)
	assert.Equal(t, "p3_a1_l0_r1_o1", scr.Options[0].ID)
	// Out-of-range weights are clamped.
	assert.Equal(t, 1.0, scr.Options[0].AxisWeights["A1"])
	assert.Equal(t, -1.0, scr.Options[3].AxisWeights["A2"])
}

func TestConstructQuestion_UnusableOutputFallsBackToTemplate(t *testing.T) {
	a := newAssessment()
	tmpl, ok := screening.Phase2Template("A1_L0")
	require.True(t, ok)

	// Too few options.
	short := `{"text": "q", "options": [{"text": "a"}, {"text": "b"}]}`
	o := NewOrchestrator(a, &fakeOracle{strong: []string{short}}, logger.Default())
	assert.Equal(t, tmpl, o.ConstructQuestion(context.Background(), "A1_L0"))

	// Not JSON at all.
	o = NewOrchestrator(a, &fakeOracle{strong: []string{"извините"}}, logger.Default())
	assert.Equal(t, tmpl, o.ConstructQuestion(context.Background(), "A1_L0"))

	// Oracle down.
	o = NewOrchestrator(a, &fakeOracle{err: errors.New("oracle down")}, logger.Default())
	assert.Equal(t, tmpl, o.ConstructQuestion(context.Background(), "A1_L0"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Report
// ──────────────────────────────────────────────────────────────────────────────

func TestGenerateReport_FoldsEngineAndOracleTexts(t *testing.T) {
	a := newAssessment()
	a.Phase1Index = screening.Phase1ScreenCount
	a.AdaptiveRounds = 2
	a.ConstructedRounds = 1
	oracle := &fakeOracle{strong: []string{"Структурный отчёт.", "Протокол интервью."}}
	o := NewOrchestrator(a, oracle, logger.Default())

	r, err := o.GenerateReport(context.Background())

	require.NoError(t, err)
	assert.Equal(t, a.ID.String(), r.AssessmentID)
	assert.Equal(t, "Структурный отчёт.", r.StructuralReport)
	assert.Equal(t, "Протокол интервью.", r.InterviewProtocol)
	assert.Equal(t, ReportPhases{Phase1Screens: 6, AdaptiveRounds: 2, ConstructedRounds: 1}, r.Phases)
	assert.Equal(t, 2, oracle.strongCalls)
}

func TestGenerateReport_OracleFailureSurfaces(t *testing.T) {
	a := newAssessment()
	o := NewOrchestrator(a, &fakeOracle{err: errors.New("oracle down")}, logger.Default())

	r, err := o.GenerateReport(context.Background())

	require.Error(t, err)
	assert.Nil(t, r)
}
