package simulator

import "regexp"

// ══════════════════════════════════════════════════════════════════════════════
// THERAPIST STABILITY INDEX
// ══════════════════════════════════════════════════════════════════════════════

// TSIComponents are the five sub-scores parsed from the final report, each
// clamped to 0..1.
type TSIComponents struct {
	RMatch                float64 `json:"r_match"`
	LConsistency          float64 `json:"l_consistency"`
	Alliance              float64 `json:"alliance"`
	UncertaintyModulation float64 `json:"uncertainty_modulation"`
	TherapistReactivity   float64 `json:"therapist_reactivity"`
}

var (
	reRMatch       = regexp.MustCompile(`(?i)R_MATCH:\s*([0-9.]+)`)
	reLConsistency = regexp.MustCompile(`(?i)L_CONSISTENCY:\s*([0-9.]+)`)
	reAlliance     = regexp.MustCompile(`(?i)ALLIANCE:\s*([0-9.]+)`)
	reUncertainty  = regexp.MustCompile(`(?i)UNCERTAINTY_MODULATION:\s*([0-9.]+)`)
	reReactivity   = regexp.MustCompile(`(?i)THERAPIST_REACTIVITY:\s*([0-9.]+)`)
)

// tsiDefault stands in for a component the report failed to state.
const tsiDefault = 0.5

// ParseTSIComponents extracts the five labeled sub-scores from the report
// text. A missing component degrades to the neutral default.
func ParseTSIComponents(report string) TSIComponents {
	pick := func(re *regexp.Regexp) float64 {
		if m := re.FindStringSubmatch(report); m != nil {
			return clamp01(parseFloat(m[1], tsiDefault))
		}
		return tsiDefault
	}
	return TSIComponents{
		RMatch:                pick(reRMatch),
		LConsistency:          pick(reLConsistency),
		Alliance:              pick(reAlliance),
		UncertaintyModulation: pick(reUncertainty),
		TherapistReactivity:   pick(reReactivity),
	}
}

// TSI is the weighted stability index, rounded to 2 decimals. Reactivity
// counts inverted: a calm therapist scores higher.
func (c TSIComponents) TSI() float64 {
	tsi := 0.25*c.RMatch +
		0.20*c.LConsistency +
		0.20*c.Alliance +
		0.20*c.UncertaintyModulation +
		0.15*(1-c.TherapistReactivity)
	return round2(tsi)
}

// Band is the interpretation band for a TSI value.
func Band(tsi float64) string {
	switch {
	case tsi >= 0.85:
		return "высокая устойчивость"
	case tsi >= 0.70:
		return "функциональная устойчивость"
	case tsi >= 0.50:
		return "неустойчивая работа"
	default:
		return "риск каскада"
	}
}
