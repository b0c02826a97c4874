// Package conceptualizer implements the case-conceptualization bot. The
// specialist dumps observations, the bot extracts structured hypotheses turn
// by turn through a socratic dialogue, and a three-layer conceptualization
// is produced when the hypothesis set can carry it.
package conceptualizer

import (
	"regexp"
	"strings"
)

// HypothesisType classifies what a hypothesis is about.
type HypothesisType string

const (
	TypeStructural HypothesisType = "structural"
	TypeFunctional HypothesisType = "functional"
	TypeDynamic    HypothesisType = "dynamic"
	TypeManagerial HypothesisType = "managerial"
)

// IsValid reports whether the type is known.
func (t HypothesisType) IsValid() bool {
	switch t {
	case TypeStructural, TypeFunctional, TypeDynamic, TypeManagerial:
		return true
	}
	return false
}

// Hypothesis is one extracted case hypothesis.
type Hypothesis struct {
	Type        HypothesisType `json:"type"`
	Levels      []string       `json:"levels"`
	Formulation string         `json:"formulation"`
	Confidence  float64        `json:"confidence"`
	Reasoning   string         `json:"reasoning,omitempty"`
}

// managerialMarkers is the fixed lexicon of control-strategy stems. Two or
// more hits in a formulation force the managerial type regardless of what
// the oracle classified.
var managerialMarkers = []string{
	"контрол",
	"управля",
	"избега",
	"сдержива",
	"подавля",
	"регулиру",
	"не допуска",
	"удержива",
	"предотвраща",
	"маскиру",
}

// ManagerialOverrideThreshold is how many marker hits trigger the override.
const ManagerialOverrideThreshold = 2

// ApplyManagerialOverride promotes the hypothesis to managerial when its
// formulation carries enough control-strategy markers.
func ApplyManagerialOverride(h *Hypothesis) {
	if h.Type == TypeManagerial {
		return
	}
	lower := strings.ToLower(h.Formulation)
	hits := 0
	for _, marker := range managerialMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	if hits >= ManagerialOverrideThreshold {
		h.Type = TypeManagerial
	}
}

// reRedFlag matches blocking risk markers. A hit stops the dialogue and
// redirects the specialist to direct risk work.
var reRedFlag = regexp.MustCompile(`(?i)(суицид[а-яё]*|самоповрежден[а-яё]*|селфхарм|насили[а-яё]*|угроза жизни)`)

// HasRedFlag reports whether the text carries a blocking risk marker.
func HasRedFlag(text string) bool {
	return reRedFlag.MatchString(text)
}
