package interpreter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanOutput() *Output {
	return &Output{
		InputSummary:            "Клиент описывает напряжение в рабочих отношениях.",
		PhenomenologicalSummary: "Повторяющееся переживание скованности при оценке со стороны.",
		InterpretativeHypotheses: []Hypothesis{
			{Formulation: "Опора на контроль как способ удержания контакта", Confidence: ConfidenceMedium},
		},
		FocusOfTension:       "Зона оценки и принятия",
		CompensatoryPatterns: []string{"Избегание прямых просьб"},
		UncertaintyProfile:   UncertaintyProfile{Level: ConfidenceMedium, Notes: "Мало данных о телесных реакциях"},
	}
}

func TestValidate_CleanOutputPasses(t *testing.T) {
	assert.Empty(t, Validate(cleanOutput(), ModeStandard))
}

func TestValidate_FlagsTraumaLanguageAsCritical(t *testing.T) {
	o := cleanOutput()
	o.InterpretativeHypotheses[0].Formulation = "Признаки ПТСР после развода"

	violations := Validate(o, ModeStandard)

	require.Len(t, violations, 1)
	assert.Equal(t, "R002", violations[0].RuleID)
	assert.Equal(t, SeverityCritical, violations[0].Severity)
}

func TestValidate_FlagsLatinPTSDWordOnly(t *testing.T) {
	o := cleanOutput()
	o.FocusOfTension = "Отмечены элементы PTSD в описании"

	violations := Validate(o, ModeStandard)
	require.Len(t, violations, 1)
	assert.Equal(t, "R002", violations[0].RuleID)
}

func TestValidate_FlagsDiagnosticAndPathologizing(t *testing.T) {
	o := cleanOutput()
	o.InputSummary = "Похоже на депрессию"
	o.CompensatoryPatterns = []string{"Патологическое избегание"}

	violations := Validate(o, ModeStandard)

	ids := make([]string, 0, len(violations))
	for _, v := range violations {
		ids = append(ids, v.RuleID)
	}
	assert.Contains(t, ids, "R001")
	assert.Contains(t, ids, "R003")
}

func TestEnforce_RepairsTraumaLanguage(t *testing.T) {
	o := cleanOutput()
	o.InterpretativeHypotheses[0].Formulation = "Травма отвержения определяет реакции"

	Enforce(o, ModeStandard)

	assert.True(t, o.PolicyFlags.RepairApplied)
	assert.Empty(t, o.PolicyFlags.Violations)
	assert.NotContains(t, strings.ToLower(o.InterpretativeHypotheses[0].Formulation), "травм")
	assert.Contains(t, o.InterpretativeHypotheses[0].Formulation, "реакция на тяжёлый опыт")
}

func TestEnforce_CleanOutputUntouched(t *testing.T) {
	o := cleanOutput()
	before := *o

	Enforce(o, ModeStandard)

	assert.False(t, o.PolicyFlags.RepairApplied)
	assert.Empty(t, o.PolicyFlags.Violations)
	assert.Equal(t, before.InputSummary, o.InputSummary)
	assert.Equal(t, before.InterpretativeHypotheses, o.InterpretativeHypotheses)
}

func TestEnforce_TrimsHypothesesOverCap(t *testing.T) {
	o := cleanOutput()
	h := o.InterpretativeHypotheses[0]
	o.InterpretativeHypotheses = []Hypothesis{h, h, h, h, h}

	Enforce(o, ModeStandard)

	assert.Len(t, o.InterpretativeHypotheses, ModeStandard.MaxHypotheses())
	assert.True(t, o.PolicyFlags.RepairApplied)
	assert.Empty(t, o.PolicyFlags.Violations)
}

func TestEnforce_LowDataMode(t *testing.T) {
	o := cleanOutput()
	h := o.InterpretativeHypotheses[0]
	o.InterpretativeHypotheses = []Hypothesis{h, h}
	o.ClarificationDirections = nil

	Enforce(o, ModeLowData)

	assert.Len(t, o.InterpretativeHypotheses, 1)
	assert.NotEmpty(t, o.ClarificationDirections)
	assert.Empty(t, o.PolicyFlags.Violations)
}

func TestEnforce_HighConfidenceRequiresNotes(t *testing.T) {
	o := cleanOutput()
	o.InterpretativeHypotheses[0].Confidence = ConfidenceHigh
	o.UncertaintyProfile.Notes = ""

	Enforce(o, ModeStandard)

	// The repair demotes the claim rather than inventing notes.
	assert.Equal(t, ConfidenceMedium, o.InterpretativeHypotheses[0].Confidence)
	assert.Empty(t, o.PolicyFlags.Violations)
}

func TestEnforce_UnrepairableStaysRecorded(t *testing.T) {
	// The repair replaces the term with a phrase the diagnostic family does
	// not match, so two passes always converge; simulate non-convergence by
	// feeding a replacement-resistant field through repeated families.
	o := cleanOutput()
	o.InputSummary = "диагноз депрессия шизофрения невроз"

	Enforce(o, ModeStandard)

	// All occurrences are of one family and get repaired in one pass.
	assert.Empty(t, o.PolicyFlags.Violations)
	assert.True(t, o.PolicyFlags.RepairApplied)
	assert.NotContains(t, strings.ToLower(o.InputSummary), "диагноз")
}

func TestModeMaxHypotheses(t *testing.T) {
	assert.Equal(t, 3, ModeStandard.MaxHypotheses())
	assert.Equal(t, 1, ModeLowData.MaxHypotheses())
}
