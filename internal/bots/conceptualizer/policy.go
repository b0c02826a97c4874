package conceptualizer

// ══════════════════════════════════════════════════════════════════════════════
// DECISION POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Action is the next socratic move.
type Action string

const (
	ActionControlCheck      Action = "control_check"
	ActionAlternativesCheck Action = "alternatives_check"
	ActionFunctionCheck     Action = "function_check"
	ActionLevelCheck        Action = "level_check"
	ActionDynamicsCheck     Action = "dynamics_check"
)

// Dialogue bounds.
const (
	// MaxTurns hard-stops the socratic dialogue.
	MaxTurns = 20
	// MinHypothesesToProceed is the floor for an early finish.
	MinHypothesesToProceed = 2
)

// CanProceed reports whether the hypothesis set can carry a
// conceptualization: enough hypotheses and at least one managerial.
func CanProceed(hs []Hypothesis) bool {
	if len(hs) < MinHypothesesToProceed {
		return false
	}
	return countType(hs, TypeManagerial) > 0
}

// NextAction picks the next socratic move by strict priority, falling back
// to turn-count pacing when no priority fires.
func NextAction(hs []Hypothesis, turns int) Action {
	// Priority 1 (critical): hypotheses exist but none name the client's
	// control strategy.
	if len(hs) > 0 && countType(hs, TypeManagerial) == 0 {
		return ActionControlCheck
	}

	// Priority 2 (high): the dominant hypothesis stands alone in its type.
	if dom := dominant(hs); dom != nil && countType(hs, dom.Type) == 1 {
		return ActionAlternativesCheck
	}

	// Priority 3 (medium): breadth problems.
	if len(hs) >= 5 && countType(hs, TypeStructural) == 0 {
		return ActionFunctionCheck
	}
	if len(hs) >= 3 && allOneLevel(hs) {
		return ActionLevelCheck
	}

	// Priority 4 (low): a workable mixed set gets a dynamics probe.
	if typeCount(hs) >= 2 && countType(hs, TypeManagerial) >= 1 && len(hs) >= 2 && len(hs) <= 6 {
		return ActionDynamicsCheck
	}

	// Pacing by turn count.
	switch {
	case turns <= 6:
		return ActionFunctionCheck
	case turns <= 12:
		return ActionLevelCheck
	default:
		return ActionDynamicsCheck
	}
}

func countType(hs []Hypothesis, t HypothesisType) int {
	n := 0
	for _, h := range hs {
		if h.Type == t {
			n++
		}
	}
	return n
}

func typeCount(hs []Hypothesis) int {
	seen := map[HypothesisType]bool{}
	for _, h := range hs {
		seen[h.Type] = true
	}
	return len(seen)
}

// dominant is the hypothesis with the highest confidence; earlier wins ties.
func dominant(hs []Hypothesis) *Hypothesis {
	var best *Hypothesis
	for i := range hs {
		if best == nil || hs[i].Confidence > best.Confidence {
			best = &hs[i]
		}
	}
	return best
}

// allOneLevel reports whether every hypothesis sits on the same single
// layer. Hypotheses without levels don't break the condition.
func allOneLevel(hs []Hypothesis) bool {
	seen := map[string]bool{}
	for _, h := range hs {
		for _, l := range h.Levels {
			seen[l] = true
		}
	}
	return len(seen) == 1
}

// Question returns the canned socratic question for an action. The dominant
// formulation is woven in where the move targets it.
func (a Action) Question(hs []Hypothesis) string {
	switch a {
	case ActionControlCheck:
		return "Как клиент сам справляется с этим? Что он делает, чтобы это контролировать или не допустить?"
	case ActionAlternativesCheck:
		if dom := dominant(hs); dom != nil {
			return "Вы предполагаете: «" + dom.Formulation + "». Какое альтернативное объяснение того же наблюдения вы бы рассмотрели?"
		}
		return "Какое альтернативное объяснение вы бы рассмотрели?"
	case ActionFunctionCheck:
		return "Какую функцию это поведение выполняет для клиента? Что оно ему даёт или от чего защищает?"
	case ActionLevelCheck:
		return "На каком уровне это проявляется сильнее всего: тело, эмоции, отношения, мышление или смыслы?"
	case ActionDynamicsCheck:
		return "Как это менялось со временем? Когда стало заметнее, когда отступало?"
	default:
		return "Что ещё вы наблюдали?"
	}
}
