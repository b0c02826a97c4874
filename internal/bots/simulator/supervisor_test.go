package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTurn_FullBlock(t *testing.T) {
	raw := `Я не понимаю, зачем вы об этом спрашиваете.

---SUPERVISOR---
SIGNAL: yellow
STATE: defense
LAYER: L1
MATCH: 0.35
CASCADE: 0.2
CRISIS: no
DELTAS: trust=-1, tension=+2, access=0, alliance=-1, risk=1`

	visible, sup := ParseTurn(raw)

	assert.Equal(t, "Я не понимаю, зачем вы об этом спрашиваете.", visible)
	assert.Equal(t, SignalYellow, sup.Signal)
	assert.Equal(t, "defense", sup.State)
	assert.Equal(t, "L1", sup.Layer)
	assert.Equal(t, 0.35, sup.Match)
	assert.Equal(t, 0.2, sup.CascadeProb)
	assert.False(t, sup.Crisis)
	assert.Equal(t, Deltas{Trust: -1, Tension: 2, Access: 0, Alliance: -1, Risk: 1}, sup.Deltas)
}

func TestParseTurn_NoMarkerDefaults(t *testing.T) {
	visible, sup := ParseTurn("  Просто ответ клиента.  ")

	assert.Equal(t, "Просто ответ клиента.", visible)
	assert.Equal(t, SignalGreen, sup.Signal)
	assert.Equal(t, "contact", sup.State)
	assert.Equal(t, "L2", sup.Layer)
	assert.Equal(t, 0.5, sup.Match)
	assert.Zero(t, sup.CascadeProb)
	assert.False(t, sup.Crisis)
}

func TestParseTurn_PartialBlockKeepsDefaults(t *testing.T) {
	raw := "Ответ.\n---SUPERVISOR---\nSIGNAL: red\nCRISIS: yes"

	visible, sup := ParseTurn(raw)

	assert.Equal(t, "Ответ.", visible)
	assert.Equal(t, SignalRed, sup.Signal)
	assert.True(t, sup.Crisis)
	// Unstated fields stay at their defaults.
	assert.Equal(t, "contact", sup.State)
	assert.Equal(t, "L2", sup.Layer)
	assert.Equal(t, 0.5, sup.Match)
	assert.Equal(t, Deltas{}, sup.Deltas)
}

func TestParseTurn_MalformedNumbersDegrade(t *testing.T) {
	raw := "Ответ.\n---SUPERVISOR---\nMATCH: abc\nCASCADE: 2.5"

	_, sup := ParseTurn(raw)

	// Unparsable match keeps the default, out-of-range cascade clamps.
	assert.Equal(t, 0.5, sup.Match)
	assert.Equal(t, 1.0, sup.CascadeProb)
}

func TestParseTurn_CaseInsensitiveFields(t *testing.T) {
	raw := "Ответ.\n---SUPERVISOR---\nsignal: RED\nlayer: l3\ncrisis: TRUE"

	_, sup := ParseTurn(raw)

	assert.Equal(t, SignalRed, sup.Signal)
	assert.Equal(t, "L3", sup.Layer)
	assert.True(t, sup.Crisis)
}
