// Package simulator implements the role-play training bot. The specialist
// picks or uploads a case, the oracle plays the client with a hidden
// supervisor channel, and the session ends with a stability report.
package simulator

import "math"

// Level grades a qualitative dynamics parameter.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

// Score maps a level to its numeric grade.
func (l Level) Score() float64 {
	switch l {
	case LevelLow:
		return 0.25
	case LevelHigh:
		return 0.75
	default:
		return 0.5
	}
}

// Width grades the intervention range. Narrow windows make a case harder,
// so the scale is inverted relative to Level.
type Width string

const (
	WidthNarrow   Width = "narrow"
	WidthModerate Width = "moderate"
	WidthWide     Width = "wide"
)

// Score maps a width to its numeric grade.
func (w Width) Score() float64 {
	switch w {
	case WidthNarrow:
		return 0.75
	case WidthWide:
		return 0.25
	default:
		return 0.5
	}
}

// Dynamics are the parameters driving a case's complexity.
type Dynamics struct {
	BaselineTensionL0 int     `json:"baseline_tension_l0"` // 0..100
	Volatility        float64 `json:"volatility"`          // 0..1
	L3Accessibility   Level   `json:"l3_accessibility"`
	EscalationSpeed   Level   `json:"escalation_speed"`
	L0Reactivity      Level   `json:"l0_reactivity"`
	InterventionRange Width   `json:"intervention_range"`
}

// CCI is the case complexity index derived from the dynamics parameters,
// rounded to 2 decimals.
func (d Dynamics) CCI() float64 {
	baselineL0 := float64(d.BaselineTensionL0) / 100
	layerDepth := 1 - d.L3Accessibility.Score()
	cascadeRisk := (d.EscalationSpeed.Score() + d.L0Reactivity.Score()) / 2
	window := d.InterventionRange.Score()

	cci := 0.25*baselineL0 + 0.15*d.Volatility + 0.20*layerDepth + 0.25*cascadeRisk + 0.15*window
	return round2(cci)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Case is one preset role-play scenario.
type Case struct {
	ID       string
	Title    string
	Persona  string
	Dynamics Dynamics
}

// caseLibrary is the preset training catalogue. Practice mode cases come
// from the specialist's own upload instead.
var caseLibrary = []Case{
	{
		ID:    "anxiety_control",
		Title: "Тревога и контроль",
		Persona: "Марина, 34 года, менеджер проектов. Приходит с жалобой на постоянную " +
			"тревогу и невозможность расслабиться. Держит всё под контролем, составляет " +
			"списки, перепроверяет. На попытки идти к чувствам уходит в деловой тон. " +
			"Раздражается, когда терапевт молчит.",
		Dynamics: Dynamics{
			BaselineTensionL0: 55,
			Volatility:        0.4,
			L3Accessibility:   LevelModerate,
			EscalationSpeed:   LevelModerate,
			L0Reactivity:      LevelModerate,
			InterventionRange: WidthModerate,
		},
	},
	{
		ID:    "frozen_grief",
		Title: "Замороженное горе",
		Persona: "Сергей, 47 лет, инженер. Полгода назад умерла жена, говорит об этом " +
			"ровным голосом, 'всё нормально, жизнь продолжается'. Телесно зажат, дыхание " +
			"поверхностное. Любое приближение к теме потери обрывает сменой темы.",
		Dynamics: Dynamics{
			BaselineTensionL0: 70,
			Volatility:        0.25,
			L3Accessibility:   LevelLow,
			EscalationSpeed:   LevelLow,
			L0Reactivity:      LevelHigh,
			InterventionRange: WidthNarrow,
		},
	},
	{
		ID:    "border_testing",
		Title: "Проверка границ",
		Persona: "Алиса, 26 лет, фрилансер. Третья попытка терапии, предыдущих терапевтов " +
			"обесценивает. Опаздывает, просит перенести оплату, задаёт личные вопросы. " +
			"При уверенной, тёплой позиции терапевта идёт на контакт; при неуверенной - " +
			"эскалирует.",
		Dynamics: Dynamics{
			BaselineTensionL0: 45,
			Volatility:        0.7,
			L3Accessibility:   LevelModerate,
			EscalationSpeed:   LevelHigh,
			L0Reactivity:      LevelModerate,
			InterventionRange: WidthModerate,
		},
	},
	{
		ID:    "quiet_collapse",
		Title: "Тихое истощение",
		Persona: "Дмитрий, 39 лет, врач. Выгорание на грани депрессивного эпизода: " +
			"говорит тихо, паузы длинные, 'не вижу смысла что-то менять'. Суицидальных " +
			"идей не предъявляет, но избегает вопросов о будущем. Реагирует на простое " +
			"человеческое присутствие больше, чем на техники.",
		Dynamics: Dynamics{
			BaselineTensionL0: 80,
			Volatility:        0.15,
			L3Accessibility:   LevelLow,
			EscalationSpeed:   LevelLow,
			L0Reactivity:      LevelLow,
			InterventionRange: WidthNarrow,
		},
	},
}

// Cases returns the preset catalogue in stable order.
func Cases() []Case {
	return caseLibrary
}

// CaseByID looks up a preset case.
func CaseByID(id string) (Case, bool) {
	for _, c := range caseLibrary {
		if c.ID == id {
			return c, true
		}
	}
	return Case{}, false
}

// uploadDynamics grades an uploaded practice case by the declared crisis
// level. Uploads carry no structured dynamics, so the crisis choice stands
// in for the whole parameter set.
func uploadDynamics(crisis Level) Dynamics {
	switch crisis {
	case LevelHigh:
		return Dynamics{
			BaselineTensionL0: 75,
			Volatility:        0.6,
			L3Accessibility:   LevelLow,
			EscalationSpeed:   LevelHigh,
			L0Reactivity:      LevelHigh,
			InterventionRange: WidthNarrow,
		}
	case LevelLow:
		return Dynamics{
			BaselineTensionL0: 35,
			Volatility:        0.25,
			L3Accessibility:   LevelHigh,
			EscalationSpeed:   LevelLow,
			L0Reactivity:      LevelLow,
			InterventionRange: WidthWide,
		}
	default:
		return Dynamics{
			BaselineTensionL0: 55,
			Volatility:        0.4,
			L3Accessibility:   LevelModerate,
			EscalationSpeed:   LevelModerate,
			L0Reactivity:      LevelModerate,
			InterventionRange: WidthModerate,
		}
	}
}
