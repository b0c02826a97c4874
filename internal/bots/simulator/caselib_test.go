package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelAndWidthScores(t *testing.T) {
	assert.Equal(t, 0.25, LevelLow.Score())
	assert.Equal(t, 0.5, LevelModerate.Score())
	assert.Equal(t, 0.75, LevelHigh.Score())
	// Unknown level reads as moderate.
	assert.Equal(t, 0.5, Level("").Score())

	// Width is inverted: a narrow window makes the case harder.
	assert.Equal(t, 0.75, WidthNarrow.Score())
	assert.Equal(t, 0.5, WidthModerate.Score())
	assert.Equal(t, 0.25, WidthWide.Score())
}

func TestCCI_Formula(t *testing.T) {
	d := Dynamics{
		BaselineTensionL0: 70,
		Volatility:        0.25,
		L3Accessibility:   LevelLow,
		EscalationSpeed:   LevelLow,
		L0Reactivity:      LevelHigh,
		InterventionRange: WidthNarrow,
	}
	// 0.25*0.70 + 0.15*0.25 + 0.20*(1-0.25) + 0.25*(0.25+0.75)/2 + 0.15*0.75
	assert.Equal(t, 0.6, d.CCI())
}

func TestCCI_AllModerateMidpoint(t *testing.T) {
	d := Dynamics{
		BaselineTensionL0: 50,
		Volatility:        0.5,
		L3Accessibility:   LevelModerate,
		EscalationSpeed:   LevelModerate,
		L0Reactivity:      LevelModerate,
		InterventionRange: WidthModerate,
	}
	assert.Equal(t, 0.5, d.CCI())
}

func TestCCI_Bounded(t *testing.T) {
	hardest := Dynamics{
		BaselineTensionL0: 100,
		Volatility:        1,
		L3Accessibility:   LevelLow,
		EscalationSpeed:   LevelHigh,
		L0Reactivity:      LevelHigh,
		InterventionRange: WidthNarrow,
	}
	easiest := Dynamics{
		L3Accessibility:   LevelHigh,
		EscalationSpeed:   LevelLow,
		L0Reactivity:      LevelLow,
		InterventionRange: WidthWide,
	}

	assert.LessOrEqual(t, hardest.CCI(), 1.0)
	assert.GreaterOrEqual(t, easiest.CCI(), 0.0)
	assert.Greater(t, hardest.CCI(), easiest.CCI())
}

func TestCaseCatalogue(t *testing.T) {
	cases := Cases()
	require.NotEmpty(t, cases)

	seen := map[string]bool{}
	for _, c := range cases {
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Title)
		assert.NotEmpty(t, c.Persona)
		assert.False(t, seen[c.ID], "duplicate case id %s", c.ID)
		seen[c.ID] = true

		cci := c.Dynamics.CCI()
		assert.Greater(t, cci, 0.0)
		assert.LessOrEqual(t, cci, 1.0)
	}

	c, ok := CaseByID(cases[0].ID)
	require.True(t, ok)
	assert.Equal(t, cases[0].Title, c.Title)

	_, ok = CaseByID("missing")
	assert.False(t, ok)
}

func TestUploadDynamics_CrisisGradesComplexity(t *testing.T) {
	low := uploadDynamics(LevelLow).CCI()
	mid := uploadDynamics(LevelModerate).CCI()
	high := uploadDynamics(LevelHigh).CCI()

	assert.Less(t, low, mid)
	assert.Less(t, mid, high)
}
