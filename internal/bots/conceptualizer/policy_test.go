package conceptualizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hyp(t HypothesisType, conf float64, levels ...string) Hypothesis {
	return Hypothesis{Type: t, Confidence: conf, Levels: levels, Formulation: "ф"}
}

func TestCanProceed(t *testing.T) {
	assert.False(t, CanProceed(nil))
	assert.False(t, CanProceed([]Hypothesis{hyp(TypeManagerial, 0.8)}))
	assert.False(t, CanProceed([]Hypothesis{hyp(TypeStructural, 0.8), hyp(TypeFunctional, 0.7)}))
	assert.True(t, CanProceed([]Hypothesis{hyp(TypeStructural, 0.8), hyp(TypeManagerial, 0.7)}))
}

func TestNextAction_ControlCheckFirst(t *testing.T) {
	// Hypotheses exist but none name the control strategy.
	hs := []Hypothesis{hyp(TypeStructural, 0.9), hyp(TypeFunctional, 0.8)}
	assert.Equal(t, ActionControlCheck, NextAction(hs, 3))
}

func TestNextAction_AlternativesForLonelyDominant(t *testing.T) {
	hs := []Hypothesis{
		hyp(TypeManagerial, 0.9),
		hyp(TypeFunctional, 0.5),
		hyp(TypeFunctional, 0.4),
	}
	// The dominant (managerial, 0.9) stands alone in its type.
	assert.Equal(t, ActionAlternativesCheck, NextAction(hs, 3))
}

func TestNextAction_FunctionCheckWhenNoStructural(t *testing.T) {
	hs := []Hypothesis{
		hyp(TypeManagerial, 0.6), hyp(TypeManagerial, 0.6),
		hyp(TypeFunctional, 0.6), hyp(TypeFunctional, 0.6),
		hyp(TypeDynamic, 0.6), hyp(TypeDynamic, 0.6),
	}
	// Five-plus hypotheses, none structural, no lonely dominant.
	assert.Equal(t, ActionFunctionCheck, NextAction(hs, 3))
}

func TestNextAction_LevelCheckWhenAllOneLevel(t *testing.T) {
	hs := []Hypothesis{
		hyp(TypeManagerial, 0.6, "emotions"), hyp(TypeManagerial, 0.6, "emotions"),
		hyp(TypeStructural, 0.6, "emotions"), hyp(TypeStructural, 0.6, "emotions"),
	}
	assert.Equal(t, ActionLevelCheck, NextAction(hs, 3))
}

func TestNextAction_DynamicsForWorkableMixedSet(t *testing.T) {
	hs := []Hypothesis{
		hyp(TypeManagerial, 0.6, "emotions"), hyp(TypeManagerial, 0.6, "body"),
		hyp(TypeStructural, 0.6, "meaning"), hyp(TypeStructural, 0.6, "relations"),
	}
	assert.Equal(t, ActionDynamicsCheck, NextAction(hs, 3))
}

func TestNextAction_PacingByTurns(t *testing.T) {
	// Empty set: no priority fires, pacing decides.
	assert.Equal(t, ActionFunctionCheck, NextAction(nil, 4))
	assert.Equal(t, ActionLevelCheck, NextAction(nil, 10))
	assert.Equal(t, ActionDynamicsCheck, NextAction(nil, 15))
}

func TestQuestion_WeavesDominantFormulation(t *testing.T) {
	hs := []Hypothesis{
		{Type: TypeManagerial, Confidence: 0.9, Formulation: "Контроль как опора"},
		{Type: TypeFunctional, Confidence: 0.3, Formulation: "другое"},
	}
	q := ActionAlternativesCheck.Question(hs)
	assert.Contains(t, q, "Контроль как опора")

	// Every action yields a non-empty question.
	for _, a := range []Action{
		ActionControlCheck, ActionAlternativesCheck, ActionFunctionCheck,
		ActionLevelCheck, ActionDynamicsCheck, Action("unknown"),
	} {
		assert.NotEmpty(t, a.Question(nil))
	}
}

func TestApplyManagerialOverride(t *testing.T) {
	h := Hypothesis{
		Type:        TypeFunctional,
		Formulation: "Клиент контролирует выражение чувств и избегает конфликтов",
	}
	ApplyManagerialOverride(&h)
	assert.Equal(t, TypeManagerial, h.Type)

	// One marker is not enough.
	h = Hypothesis{Type: TypeFunctional, Formulation: "Клиент избегает конфликтов"}
	ApplyManagerialOverride(&h)
	assert.Equal(t, TypeFunctional, h.Type)

	// No markers at all.
	h = Hypothesis{Type: TypeDynamic, Formulation: "Состояние колеблется по сезонам"}
	ApplyManagerialOverride(&h)
	assert.Equal(t, TypeDynamic, h.Type)
}

func TestHasRedFlag(t *testing.T) {
	assert.True(t, HasRedFlag("Были суицидальные мысли"))
	assert.True(t, HasRedFlag("эпизоды самоповреждения"))
	assert.True(t, HasRedFlag("говорит про угроза жизни"))
	assert.False(t, HasRedFlag("Клиент жалуется на усталость"))
	assert.False(t, HasRedFlag(""))
}

func TestHypothesisTypeIsValid(t *testing.T) {
	for _, ht := range []HypothesisType{TypeStructural, TypeFunctional, TypeDynamic, TypeManagerial} {
		assert.True(t, ht.IsValid())
	}
	assert.False(t, HypothesisType("other").IsValid())
}
