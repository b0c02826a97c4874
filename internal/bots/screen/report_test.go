package screen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderReportText(t *testing.T) {
	r := &Report{
		AxisVector:  map[string]float64{"A1": 0.8, "A2": -0.4},
		LayerVector: map[string]float64{"L0": 0.2},
		DominantCells: []string{
			"A1_L0", "A2_L3", "A3_L1",
		},
		Rigidity:          0.42,
		Confidence:        0.77,
		Phases:            ReportPhases{Phase1Screens: 6, AdaptiveRounds: 3, ConstructedRounds: 2},
		StructuralReport:  "Структурный текст.",
		InterviewProtocol: "1. Первый вопрос.",
	}

	text := RenderReportText(r)

	assert.Contains(t, text, "РЕЗУЛЬТАТЫ СКРИНИНГА")
	assert.Contains(t, text, "Активность - выжидание")
	assert.Contains(t, text, "Тело")
	assert.Contains(t, text, "Активность - выжидание × Тело")
	assert.Contains(t, text, "Ригидность стратегий: 0.42")
	assert.Contains(t, text, "Надёжность профиля: 0.77")
	assert.Contains(t, text, "6 экранов, 3 адаптивных и 2 сконструированных")
	assert.Contains(t, text, "Структурный текст.")
	assert.Contains(t, text, "1. Первый вопрос.")
}

func TestRenderScale(t *testing.T) {
	// The marker moves with the value and the number is printed signed.
	left := renderScale(-1)
	center := renderScale(0)
	right := renderScale(0.99)

	assert.True(t, strings.HasPrefix(left, "[●"))
	assert.Contains(t, left, "-1.00")
	assert.Contains(t, center, "+0.00")
	assert.True(t, strings.Contains(right, "●]"), right)

	// Out-of-range values stay inside the gauge.
	assert.Len(t, []rune(renderScale(5)), len([]rune(center)))
}

func TestNodeLabel(t *testing.T) {
	assert.Equal(t, "Анализ - интуиция × Мышление", nodeLabel("A2_L3"))
	assert.Equal(t, "garbage", nodeLabel("garbage"))
}
