// Package interpreter implements the phenomenological interpretation bot.
// A specialist hands over session material through a deep link; the bot
// collects it, optionally clarifies, and produces a structured
// interpretation validated by a content policy engine.
package interpreter

import "encoding/json"

// Mode selects the interpretation prompt and the policy caps.
type Mode string

const (
	// ModeStandard allows up to three hypotheses.
	ModeStandard Mode = "standard"
	// ModeLowData is the degraded mode for thin material: one hypothesis,
	// mandatory clarification directions.
	ModeLowData Mode = "low_data"
)

// MaxHypotheses returns the hypothesis cap for the mode.
func (m Mode) MaxHypotheses() int {
	if m == ModeLowData {
		return 1
	}
	return 3
}

// Confidence levels reported per hypothesis.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Hypothesis is one interpretative hypothesis.
type Hypothesis struct {
	Formulation string `json:"formulation"`
	Confidence  string `json:"confidence"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// UncertaintyProfile reports what remains unknown and how strongly.
type UncertaintyProfile struct {
	Level string `json:"level"`
	Notes string `json:"notes,omitempty"`
}

// PolicyFlags records the policy engine's verdict on the emitted output.
type PolicyFlags struct {
	Violations    []string `json:"violations"`
	RepairApplied bool     `json:"repair_applied"`
}

// Meta describes how the output was produced.
type Meta struct {
	Mode          Mode   `json:"mode"`
	Clarifications int   `json:"clarifications"`
	RunID         string `json:"run_id"`
}

// Output is the full structured interpretation, persisted as the artifact
// payload and rendered into the chat documents.
type Output struct {
	Meta                     Meta               `json:"meta"`
	InputSummary             string             `json:"input_summary"`
	PhenomenologicalSummary  string             `json:"phenomenological_summary"`
	InterpretativeHypotheses []Hypothesis       `json:"interpretative_hypotheses"`
	FocusOfTension           string             `json:"focus_of_tension"`
	CompensatoryPatterns     []string           `json:"compensatory_patterns"`
	UncertaintyProfile       UncertaintyProfile `json:"uncertainty_profile"`
	ClarificationDirections  []string           `json:"clarification_directions"`
	PolicyFlags              PolicyFlags        `json:"policy_flags"`
}

// MarshalPayload renders the output as the artifact payload.
func (o *Output) MarshalPayload() (json.RawMessage, error) {
	return json.Marshal(o)
}

// MaterialCompleteness is the material-check verdict.
type MaterialCompleteness string

const (
	MaterialSufficient  MaterialCompleteness = "sufficient"
	MaterialPartial     MaterialCompleteness = "partial"
	MaterialFragmentary MaterialCompleteness = "fragmentary"
)
