package interpreter

import (
	"fmt"
	"regexp"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// POLICY ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Severity of a policy violation.
type Severity string

const (
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Violation is one detected rule breach.
type Violation struct {
	RuleID   string
	Severity Severity
	Detail   string
}

// String renders the violation for policy_flags.violations.
func (v Violation) String() string {
	return fmt.Sprintf("%s/%s: %s", v.RuleID, v.Severity, v.Detail)
}

// MaxRepairAttempts caps the validate-repair loop per run.
const MaxRepairAttempts = 2

// rule couples a check with its in-place repair.
type rule struct {
	id     string
	check  func(o *Output, mode Mode) []Violation
	repair func(o *Output, mode Mode)
}

// Term families. Compiled once; (?i) covers both Latin and Cyrillic case
// folding. \w and \b are ASCII-only in RE2, so Cyrillic stems spell their
// suffix class out.
var (
	reDiagnostic = regexp.MustCompile(`(?i)(депресси[а-яё]*|шизофрени[а-яё]*|биполярн[а-яё]*|расстройств[а-яё]*|диагноз[а-яё]*|клиническ[а-яё]*|невроз[а-яё]*)`)
	reTrauma     = regexp.MustCompile(`(?i)(\bPTSD\b|ПТСР|посттравматическ[а-яё]*|травм[а-яё]*)`)
	rePathology  = regexp.MustCompile(`(?i)(патологи[а-яё]*|ненормальн[а-яё]*|дефектн[а-яё]*|дисфункциональн[а-яё]*)`)
)

// Replacement phrases keyed by rule.
var (
	traumaReplacement     = "реакция на тяжёлый опыт"
	diagnosticReplacement = "выраженное состояние"
	pathologyReplacement  = "особенность функционирования"
)

var rules = []rule{
	{
		id: "R001",
		check: func(o *Output, _ Mode) []Violation {
			return findTerms(o, reDiagnostic, "R001", SeverityError, "diagnostic language")
		},
		repair: func(o *Output, _ Mode) {
			replaceTerms(o, reDiagnostic, diagnosticReplacement)
		},
	},
	{
		id: "R002",
		check: func(o *Output, _ Mode) []Violation {
			return findTerms(o, reTrauma, "R002", SeverityCritical, "trauma-claim language")
		},
		repair: func(o *Output, _ Mode) {
			replaceTerms(o, reTrauma, traumaReplacement)
		},
	},
	{
		id: "R003",
		check: func(o *Output, _ Mode) []Violation {
			return findTerms(o, rePathology, "R003", SeverityError, "pathologizing language")
		},
		repair: func(o *Output, _ Mode) {
			replaceTerms(o, rePathology, pathologyReplacement)
		},
	},
	{
		id: "R004",
		check: func(o *Output, mode Mode) []Violation {
			if n, max := len(o.InterpretativeHypotheses), mode.MaxHypotheses(); n > max {
				return []Violation{{
					RuleID:   "R004",
					Severity: SeverityError,
					Detail:   fmt.Sprintf("%d hypotheses, cap is %d", n, max),
				}}
			}
			return nil
		},
		repair: func(o *Output, mode Mode) {
			if max := mode.MaxHypotheses(); len(o.InterpretativeHypotheses) > max {
				o.InterpretativeHypotheses = o.InterpretativeHypotheses[:max]
			}
		},
	},
	{
		id: "R005",
		check: func(o *Output, _ Mode) []Violation {
			var out []Violation
			for i, h := range o.InterpretativeHypotheses {
				if h.Confidence == ConfidenceHigh && strings.TrimSpace(o.UncertaintyProfile.Notes) == "" {
					out = append(out, Violation{
						RuleID:   "R005",
						Severity: SeverityError,
						Detail:   fmt.Sprintf("hypothesis %d claims high confidence without uncertainty notes", i+1),
					})
				}
			}
			return out
		},
		repair: func(o *Output, _ Mode) {
			for i := range o.InterpretativeHypotheses {
				if o.InterpretativeHypotheses[i].Confidence == ConfidenceHigh {
					o.InterpretativeHypotheses[i].Confidence = ConfidenceMedium
				}
			}
			if o.UncertaintyProfile.Level == "" {
				o.UncertaintyProfile.Level = ConfidenceMedium
			}
		},
	},
	{
		id: "R006",
		check: func(o *Output, mode Mode) []Violation {
			if mode != ModeLowData {
				return nil
			}
			var out []Violation
			if len(o.InterpretativeHypotheses) > 1 {
				out = append(out, Violation{
					RuleID: "R006", Severity: SeverityError,
					Detail: "low-data mode allows a single hypothesis",
				})
			}
			if len(o.ClarificationDirections) == 0 {
				out = append(out, Violation{
					RuleID: "R006", Severity: SeverityError,
					Detail: "low-data mode requires clarification directions",
				})
			}
			return out
		},
		repair: func(o *Output, mode Mode) {
			if mode != ModeLowData {
				return
			}
			if len(o.InterpretativeHypotheses) > 1 {
				o.InterpretativeHypotheses = o.InterpretativeHypotheses[:1]
			}
			if len(o.ClarificationDirections) == 0 {
				o.ClarificationDirections = []string{
					"Уточнить контекст и повторяемость описанных реакций",
				}
			}
		},
	},
}

// Validate runs every rule and returns all violations.
func Validate(o *Output, mode Mode) []Violation {
	var out []Violation
	for _, r := range rules {
		out = append(out, r.check(o, mode)...)
	}
	return out
}

// Enforce runs the validate-repair loop, at most MaxRepairAttempts repairs.
// The output is always emitted; what could not be repaired stays recorded in
// policy_flags.violations.
func Enforce(o *Output, mode Mode) {
	violations := Validate(o, mode)
	for attempt := 0; attempt < MaxRepairAttempts && len(violations) > 0; attempt++ {
		broken := map[string]bool{}
		for _, v := range violations {
			broken[v.RuleID] = true
		}
		for _, r := range rules {
			if broken[r.id] {
				r.repair(o, mode)
			}
		}
		o.PolicyFlags.RepairApplied = true
		violations = Validate(o, mode)
	}

	o.PolicyFlags.Violations = make([]string, 0, len(violations))
	for _, v := range violations {
		o.PolicyFlags.Violations = append(o.PolicyFlags.Violations, v.String())
	}
}

// findTerms scans every free-text field for the family.
func findTerms(o *Output, re *regexp.Regexp, ruleID string, sev Severity, label string) []Violation {
	var out []Violation
	scan := func(where, text string) {
		if m := re.FindString(text); m != "" {
			out = append(out, Violation{
				RuleID:   ruleID,
				Severity: sev,
				Detail:   fmt.Sprintf("%s %q in %s", label, m, where),
			})
		}
	}

	scan("input_summary", o.InputSummary)
	scan("phenomenological_summary", o.PhenomenologicalSummary)
	scan("focus_of_tension", o.FocusOfTension)
	for i, h := range o.InterpretativeHypotheses {
		scan(fmt.Sprintf("hypothesis %d", i+1), h.Formulation)
		scan(fmt.Sprintf("hypothesis %d reasoning", i+1), h.Reasoning)
	}
	for i, p := range o.CompensatoryPatterns {
		scan(fmt.Sprintf("compensatory pattern %d", i+1), p)
	}
	return out
}

// replaceTerms rewrites the family in every free-text field.
func replaceTerms(o *Output, re *regexp.Regexp, replacement string) {
	fix := func(s string) string { return re.ReplaceAllString(s, replacement) }

	o.InputSummary = fix(o.InputSummary)
	o.PhenomenologicalSummary = fix(o.PhenomenologicalSummary)
	o.FocusOfTension = fix(o.FocusOfTension)
	for i := range o.InterpretativeHypotheses {
		o.InterpretativeHypotheses[i].Formulation = fix(o.InterpretativeHypotheses[i].Formulation)
		o.InterpretativeHypotheses[i].Reasoning = fix(o.InterpretativeHypotheses[i].Reasoning)
	}
	for i := range o.CompensatoryPatterns {
		o.CompensatoryPatterns[i] = fix(o.CompensatoryPatterns[i])
	}
}
