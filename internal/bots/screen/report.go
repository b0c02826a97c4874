package screen

import (
	"fmt"
	"strings"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/screening"
)

// axisNames and layerNames are the human labels used in the rendered
// report. The method's axis poles are fixed.
var axisNames = map[string]string{
	"A1": "Активность - выжидание",
	"A2": "Анализ - интуиция",
	"A3": "Устойчивость - истощаемость",
	"A4": "Опора на других - автономия",
}

var layerNames = map[string]string{
	"L0": "Тело",
	"L1": "Эмоции",
	"L2": "Отношения",
	"L3": "Мышление",
	"L4": "Смыслы",
}

// RenderReportText renders the final client-facing document. Pure function
// of the folded report; no oracle calls.
func RenderReportText(r *Report) string {
	var b strings.Builder
	b.WriteString("РЕЗУЛЬТАТЫ СКРИНИНГА\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString("ПРОФИЛЬ ПО ОСЯМ\n")
	for _, a := range screening.Axes {
		fmt.Fprintf(&b, "  %-30s %s\n", axisNames[a], renderScale(r.AxisVector[a]))
	}
	b.WriteString("\nПРОФИЛЬ ПО УРОВНЯМ\n")
	for _, l := range screening.Layers {
		fmt.Fprintf(&b, "  %-30s %s\n", layerNames[l], renderScale(r.LayerVector[l]))
	}

	b.WriteString("\nКЛЮЧЕВЫЕ УЗЛЫ НАПРЯЖЕНИЯ\n")
	for i, node := range r.DominantCells {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, nodeLabel(node))
	}

	fmt.Fprintf(&b, "\nРигидность стратегий: %.2f\nНадёжность профиля: %.2f\n", r.Rigidity, r.Confidence)
	fmt.Fprintf(&b, "Пройдено: %d экранов, %d адаптивных и %d сконструированных вопросов\n\n",
		r.Phases.Phase1Screens, r.Phases.AdaptiveRounds, r.Phases.ConstructedRounds)

	b.WriteString("СТРУКТУРНЫЙ ОТЧЁТ\n" + strings.Repeat("-", 40) + "\n")
	b.WriteString(r.StructuralReport + "\n\n")
	b.WriteString("ПРОТОКОЛ ПЕРВИЧНОГО ИНТЕРВЬЮ\n" + strings.Repeat("-", 40) + "\n")
	b.WriteString(r.InterviewProtocol + "\n")
	return b.String()
}

// renderScale draws a signed value in (-1, 1) as a fixed-width gauge.
func renderScale(v float64) string {
	const width = 10
	pos := int((v + 1) / 2 * width)
	if pos < 0 {
		pos = 0
	}
	if pos >= width {
		pos = width - 1
	}
	gauge := []rune(strings.Repeat("·", width))
	gauge[pos] = '●'
	return fmt.Sprintf("[%s] %+.2f", string(gauge), v)
}

// nodeLabel expands an "A_j_L_k" node into its human label pair.
func nodeLabel(node string) string {
	parts := strings.SplitN(node, "_", 2)
	if len(parts) != 2 {
		return node
	}
	return fmt.Sprintf("%s × %s", axisNames[parts[0]], layerNames[parts[1]])
}
