package screening

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resp(axis, layer map[string]float64) Response {
	return Response{AxisWeights: axis, LayerWeights: layer}
}

func TestNewEngineState_Empty(t *testing.T) {
	s := NewEngineState()

	for _, a := range Axes {
		assert.Zero(t, s.AxisVector[a])
	}
	for _, l := range Layers {
		assert.Zero(t, s.LayerVector[l])
	}
	// All-zero tension means every cell is an ambiguity zone.
	assert.Len(t, s.AmbiguityZones, CellCount)
	assert.Len(t, s.DominantCells, DominantCellCount)
	// No spread yet, so only the low-variance term contributes.
	assert.InDelta(t, 0.3, s.Rigidity, 1e-12)
	assert.Empty(t, s.ResponseHistory)
}

func TestProcessResponse_DoesNotMutateInput(t *testing.T) {
	s := NewEngineState()
	r1 := resp(map[string]float64{"A1": 1}, map[string]float64{"L0": 1})

	s2 := ProcessResponse(s, r1)

	assert.Empty(t, s.ResponseHistory)
	assert.Zero(t, s.AxisVector["A1"])
	require.Len(t, s2.ResponseHistory, 1)
	assert.Greater(t, s2.AxisVector["A1"], 0.0)
}

func TestFromHistory_PureFunctionOfHistory(t *testing.T) {
	history := []Response{
		resp(map[string]float64{"A1": 1, "A2": -0.5}, map[string]float64{"L0": 1}),
		resp(map[string]float64{"A1": 0.5, "A3": 1}, map[string]float64{"L2": -1}),
		resp(map[string]float64{"A4": -1}, map[string]float64{"L4": 0.5}),
	}

	// Replaying the same history step by step lands on the same state.
	step := NewEngineState()
	for _, r := range history {
		step = ProcessResponse(step, r)
	}
	direct := FromHistory(history)

	assert.Equal(t, direct.AxisVector, step.AxisVector)
	assert.Equal(t, direct.LayerVector, step.LayerVector)
	assert.Equal(t, direct.TensionMatrix, step.TensionMatrix)
	assert.Equal(t, direct.AmbiguityZones, step.AmbiguityZones)
	assert.Equal(t, direct.DominantCells, step.DominantCells)
	assert.Equal(t, direct.Rigidity, step.Rigidity)
	assert.Equal(t, direct.Confidence, step.Confidence)
}

func TestAggregate_TanhOfMean(t *testing.T) {
	history := []Response{
		resp(map[string]float64{"A1": 1}, nil),
		resp(map[string]float64{"A1": 2}, nil),
	}
	s := FromHistory(history)

	assert.InDelta(t, math.Tanh(1.5), s.AxisVector["A1"], 1e-12)
	// Missing keys read as zero weight.
	assert.Zero(t, s.AxisVector["A2"])
}

func TestVectors_Bounded(t *testing.T) {
	history := []Response{
		resp(map[string]float64{"A1": 100, "A2": -100}, map[string]float64{"L0": 100}),
	}
	s := FromHistory(history)

	for _, a := range Axes {
		assert.LessOrEqual(t, math.Abs(s.AxisVector[a]), 1.0)
	}
	for _, l := range Layers {
		assert.LessOrEqual(t, math.Abs(s.LayerVector[l]), 1.0)
	}
	assert.GreaterOrEqual(t, s.Rigidity, 0.0)
	assert.LessOrEqual(t, s.Rigidity, 1.0)
	assert.GreaterOrEqual(t, s.Confidence, 0.0)
	assert.LessOrEqual(t, s.Confidence, 1.0)
}

func TestTensionMatrix_OuterProduct(t *testing.T) {
	axis := map[string]float64{"A1": 0.5, "A2": -0.5}
	layer := map[string]float64{"L0": 0.8, "L1": -0.2}

	tension := TensionMatrix(axis, layer)

	require.Len(t, tension, CellCount)
	assert.InDelta(t, 0.4, tension["L0_A1"], 1e-12)
	assert.InDelta(t, -0.4, tension["L0_A2"], 1e-12)
	assert.InDelta(t, -0.1, tension["L1_A1"], 1e-12)
	assert.Zero(t, tension["L4_A4"])
}

func TestAmbiguityZones_CutoffAndOrder(t *testing.T) {
	tension := map[string]float64{}
	for _, l := range Layers {
		for _, a := range Axes {
			tension[TensionCellKey(l, a)] = 0.5
		}
	}
	tension["L0_A1"] = 0.05
	tension["L3_A1"] = -0.09
	tension["L1_A2"] = 0.0
	tension["L2_A4"] = AmbiguityCutoff // exactly at the cutoff is not ambiguous

	zones := AmbiguityZones(tension)

	// Axis-major canonical order.
	assert.Equal(t, []string{"A1_L0", "A1_L3", "A2_L1"}, zones)
}

func TestDominantCells_TopThreeByMagnitude(t *testing.T) {
	tension := map[string]float64{}
	tension["L2_A3"] = -0.9
	tension["L0_A1"] = 0.8
	tension["L4_A2"] = 0.7
	tension["L1_A4"] = 0.6

	cells := DominantCells(tension)

	assert.Equal(t, []string{"A3_L2", "A1_L0", "A2_L4"}, cells)
}

func TestDominantCells_TiesResolveCanonically(t *testing.T) {
	// All cells zero: canonical order decides.
	cells := DominantCells(map[string]float64{})
	assert.Equal(t, []string{"A1_L0", "A1_L1", "A1_L2"}, cells)
}

func TestNodeCellKeyRoundTrip(t *testing.T) {
	assert.Equal(t, "L0_A1", TensionCellKey("L0", "A1"))
	assert.Equal(t, "A1_L0", NodeKey("A1", "L0"))
	assert.Equal(t, "L3_A2", NodeToCell("A2_L3"))
	assert.Equal(t, "garbage", NodeToCell("garbage"))
}

func TestRigidityIndex_RepetitionRaisesIt(t *testing.T) {
	same := resp(map[string]float64{"A1": 1, "A2": -1}, nil)
	varied := []Response{
		resp(map[string]float64{"A1": 1, "A2": -1}, nil),
		resp(map[string]float64{"A1": -1, "A2": 1}, nil),
		resp(map[string]float64{"A1": 0.2, "A2": 0.3}, nil),
	}

	rigid := FromHistory([]Response{same, same, same})
	loose := FromHistory(varied)

	assert.Greater(t, rigid.Rigidity, loose.Rigidity)
}

// TestFromHistory_CanonicalFixture pins the full derived state for a fixed
// fourteen-response history: a consistently active-analytic profile working
// on the thinking layer. Any change to the engine arithmetic shows up here.
func TestFromHistory_CanonicalFixture(t *testing.T) {
	history := []Response{
		resp(map[string]float64{"A1": 0.8, "A2": 0.5}, map[string]float64{"L3": 0.7, "L1": 0.2}),
		resp(map[string]float64{"A1": 0.7, "A2": 0.6, "A4": -0.3}, map[string]float64{"L3": 0.8}),
		resp(map[string]float64{"A1": 0.8, "A2": 0.4}, map[string]float64{"L3": 0.6, "L4": 0.3}),
		resp(map[string]float64{"A1": 0.6, "A2": 0.7, "A4": -0.4}, map[string]float64{"L3": 0.7, "L4": 0.2}),
		resp(map[string]float64{"A1": 0.9, "A2": 0.5}, map[string]float64{"L1": 0.4, "L3": 0.5}),
		resp(map[string]float64{"A1": 0.7, "A2": 0.6, "A4": -0.2}, map[string]float64{"L3": 0.8, "L4": 0.1}),
		resp(map[string]float64{"A1": 0.8, "A2": 0.5}, map[string]float64{"L3": 0.7, "L1": 0.2}),
		resp(map[string]float64{"A1": 0.7, "A2": 0.7, "A4": -0.3}, map[string]float64{"L3": 0.6, "L4": 0.4}),
		resp(map[string]float64{"A1": 0.8, "A2": 0.6}, map[string]float64{"L3": 0.8}),
		resp(map[string]float64{"A1": 0.6, "A2": 0.5, "A4": -0.4}, map[string]float64{"L3": 0.7, "L1": 0.2}),
		resp(map[string]float64{"A1": 0.9, "A2": 0.4}, map[string]float64{"L3": 0.6, "L4": 0.3}),
		resp(map[string]float64{"A1": 0.7, "A2": 0.6, "A4": -0.3}, map[string]float64{"L3": 0.8}),
		resp(map[string]float64{"A1": 0.8, "A2": 0.5}, map[string]float64{"L3": 0.7, "L4": 0.2}),
		resp(map[string]float64{"A1": 0.7, "A2": 0.6, "A4": -0.2}, map[string]float64{"L3": 0.7, "L1": 0.3}),
	}

	s := FromHistory(history)

	assert.InDelta(t, 0.6351489523872872, s.AxisVector["A1"], 1e-9)
	assert.InDelta(t, 0.5005202111902352, s.AxisVector["A2"], 1e-9)
	assert.Zero(t, s.AxisVector["A3"])
	assert.InDelta(t, -0.1488850336233180, s.AxisVector["A4"], 1e-9)

	assert.Zero(t, s.LayerVector["L0"])
	assert.InDelta(t, 0.0925911748122928, s.LayerVector["L1"], 1e-9)
	assert.Zero(t, s.LayerVector["L2"])
	assert.InDelta(t, 0.5998143435669930, s.LayerVector["L3"], 1e-9)
	assert.InDelta(t, 0.1067347455993057, s.LayerVector["L4"], 1e-9)

	assert.InDelta(t, 0.3809714519434440, s.TensionMatrix["L3_A1"], 1e-9)
	assert.InDelta(t, 0.3002192019170836, s.TensionMatrix["L3_A2"], 1e-9)
	assert.InDelta(t, 0.0588091876823360, s.TensionMatrix["L1_A1"], 1e-9)
	assert.InDelta(t, -0.0158912061873289, s.TensionMatrix["L4_A4"], 1e-9)

	// Only the two strong thinking-layer cells clear the ambiguity cutoff.
	assert.Len(t, s.AmbiguityZones, 18)
	assert.NotContains(t, s.AmbiguityZones, "A1_L3")
	assert.NotContains(t, s.AmbiguityZones, "A2_L3")
	assert.Contains(t, s.AmbiguityZones, "A4_L3")

	assert.Equal(t, []string{"A1_L3", "A2_L3", "A4_L3"}, s.DominantCells)

	// No polarized axis; low spread and a repeated +/+ strategy carry it.
	assert.InDelta(t, 0.4148738359098090, s.Rigidity, 1e-9)
	// coverage 0.5, stability 0.8297, clarity 0.1.
	assert.InDelta(t, 0.4765825572732060, s.Confidence, 1e-9)
}

func TestConfidenceScore_GrowsWithCoverage(t *testing.T) {
	thin := FromHistory([]Response{
		resp(map[string]float64{"A1": 0.1}, nil),
	})
	broad := FromHistory([]Response{
		resp(map[string]float64{"A1": 1, "A2": 1, "A3": 1, "A4": 1},
			map[string]float64{"L0": 1, "L1": 1, "L2": 1, "L3": 1, "L4": 1}),
	})

	assert.Greater(t, broad.Confidence, thin.Confidence)
}
