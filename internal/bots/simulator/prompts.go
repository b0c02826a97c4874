package simulator

import (
	"fmt"
	"strings"
)

// sessionSystemPrompt assembles the role-play system prompt from the chosen
// case and session goal. The oracle plays the client and reports to the
// hidden supervisor channel after every reply.
func sessionSystemPrompt(persona string, d Dynamics, goal string) string {
	var b strings.Builder
	b.WriteString("Ты играешь клиента на учебной сессии психотерапии. Отвечай от первого лица, реалистично, без мета-комментариев.\n\n")
	b.WriteString("ПЕРСОНАЖ:\n" + persona + "\n\n")
	fmt.Fprintf(&b, "ДИНАМИКА СЛУЧАЯ: базовое телесное напряжение %d/100, волатильность %.2f, доступность смыслового уровня %s, скорость эскалации %s, телесная реактивность %s, окно интервенции %s.\n\n",
		d.BaselineTensionL0, d.Volatility, d.L3Accessibility, d.EscalationSpeed, d.L0Reactivity, d.InterventionRange)
	if goal != "" {
		b.WriteString("ЦЕЛЬ ТРЕНИРОВКИ СПЕЦИАЛИСТА: " + goal + "\n\n")
	}
	b.WriteString(`После КАЖДОЙ реплики клиента добавь служебный блок строго в формате:
` + supervisorMarker + `
SIGNAL: green|yellow|red
STATE: <короткий токен состояния клиента>
LAYER: L0|L1|L2|L3|L4
MATCH: <0.0-1.0, попадание последней интервенции>
CASCADE: <0.0-1.0, вероятность каскада>
DELTA: trust=<int> tension=<int> access=<int> alliance=<int> risk=<int>
CRISIS: yes|no

Блок обязателен в каждом ответе. Клиентская реплика идёт ДО маркера.`)
	return b.String()
}

// reportPrompt asks for the final analytical report. The five labeled
// components feed the stability index.
const reportPrompt = `Ты супервизор учебной сессии психотерапии. По стенограмме составь аналитический отчёт для специалиста:
1. Общая картина сессии и ключевые моменты.
2. Что получалось, что срывалось.
3. Конкретные рекомендации.

В конце отчёта добавь блок оценок строго в формате (каждое значение 0.0-1.0):
R_MATCH: <точность попадания интервенций>
L_CONSISTENCY: <согласованность работы по уровням>
ALLIANCE: <качество альянса>
UNCERTAINTY_MODULATION: <работа с неопределённостью>
THERAPIST_REACTIVITY: <реактивность терапевта; выше = хуже>`
