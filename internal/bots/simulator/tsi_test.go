package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTSIComponents(t *testing.T) {
	report := `Отчёт супервизора.

R_MATCH: 0.8
L_CONSISTENCY: 0.7
ALLIANCE: 0.9
UNCERTAINTY_MODULATION: 0.6
THERAPIST_REACTIVITY: 0.2`

	c := ParseTSIComponents(report)

	assert.Equal(t, 0.8, c.RMatch)
	assert.Equal(t, 0.7, c.LConsistency)
	assert.Equal(t, 0.9, c.Alliance)
	assert.Equal(t, 0.6, c.UncertaintyModulation)
	assert.Equal(t, 0.2, c.TherapistReactivity)
}

func TestParseTSIComponents_MissingDegradeToNeutral(t *testing.T) {
	c := ParseTSIComponents("R_MATCH: 0.9")

	assert.Equal(t, 0.9, c.RMatch)
	assert.Equal(t, tsiDefault, c.LConsistency)
	assert.Equal(t, tsiDefault, c.Alliance)
	assert.Equal(t, tsiDefault, c.UncertaintyModulation)
	assert.Equal(t, tsiDefault, c.TherapistReactivity)
}

func TestParseTSIComponents_ClampsOutOfRange(t *testing.T) {
	c := ParseTSIComponents("R_MATCH: 1.7\nALLIANCE: 0.95")
	assert.Equal(t, 1.0, c.RMatch)
	assert.Equal(t, 0.95, c.Alliance)
}

func TestTSI_Weights(t *testing.T) {
	c := TSIComponents{
		RMatch:                0.8,
		LConsistency:          0.7,
		Alliance:              0.9,
		UncertaintyModulation: 0.6,
		TherapistReactivity:   0.2,
	}
	// 0.25*0.8 + 0.20*0.7 + 0.20*0.9 + 0.20*0.6 + 0.15*0.8 = 0.76
	assert.Equal(t, 0.76, c.TSI())
}

func TestTSI_ReactivityCountsInverted(t *testing.T) {
	calm := TSIComponents{RMatch: 0.5, LConsistency: 0.5, Alliance: 0.5, UncertaintyModulation: 0.5, TherapistReactivity: 0.0}
	jumpy := TSIComponents{RMatch: 0.5, LConsistency: 0.5, Alliance: 0.5, UncertaintyModulation: 0.5, TherapistReactivity: 1.0}

	assert.Greater(t, calm.TSI(), jumpy.TSI())
}

func TestBand(t *testing.T) {
	assert.Equal(t, "высокая устойчивость", Band(0.9))
	assert.Equal(t, "высокая устойчивость", Band(0.85))
	assert.Equal(t, "функциональная устойчивость", Band(0.84))
	assert.Equal(t, "функциональная устойчивость", Band(0.70))
	assert.Equal(t, "неустойчивая работа", Band(0.69))
	assert.Equal(t, "неустойчивая работа", Band(0.50))
	assert.Equal(t, "риск каскада", Band(0.49))
	assert.Equal(t, "риск каскада", Band(0))
}
