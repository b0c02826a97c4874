package screening

// Question banks are immutable inputs to the orchestrator. Phase 1 is a
// fixed sequence of six multi-select screens; Phase 2 keeps one reference
// template per diagnostic node. Texts are delivered to clients as-is.

// Option is one selectable answer. Each selected option contributes one
// response to the vector engine.
type Option struct {
	ID           string
	Text         string
	AxisWeights  map[string]float64
	LayerWeights map[string]float64
}

// Screen is one multi-select question.
type Screen struct {
	ID      string
	Text    string
	Options []Option
}

// Phase1ScreenCount is the length of the fixed Phase 1 sequence.
const Phase1ScreenCount = 6

// Phase1Bank returns the six fixed screens, in delivery order.
func Phase1Bank() []Screen {
	return phase1Bank
}

// Phase2Template returns the reference template for a diagnostic node
// ("A1_L0" .. "A4_L4") and whether one exists.
func Phase2Template(node string) (Screen, bool) {
	s, ok := phase2Bank[node]
	return s, ok
}

// Phase2Nodes lists the Phase 2 bank's nodes in canonical order. The first
// entry is the terminal fallback when both the router and the engine state
// yield nothing.
func Phase2Nodes() []string {
	nodes := make([]string, 0, CellCount)
	for _, a := range Axes {
		for _, l := range Layers {
			nodes = append(nodes, NodeKey(a, l))
		}
	}
	return nodes
}

var phase1Bank = []Screen{
	{
		ID:   "p1_s1",
		Text: "Когда возникает напряжённая ситуация, что происходит с вами чаще всего? Выберите всё, что подходит.",
		Options: []Option{
			{ID: "p1_s1_o1", Text: "Сразу начинаю действовать, разберусь по ходу",
				AxisWeights:  map[string]float64{"A1": 0.8, "A3": 0.4},
				LayerWeights: map[string]float64{"L0": 0.7, "L1": 0.3}},
			{ID: "p1_s1_o2", Text: "Замираю и жду, пока станет понятнее",
				AxisWeights:  map[string]float64{"A1": -0.8, "A2": -0.3},
				LayerWeights: map[string]float64{"L0": 0.6, "L2": 0.3}},
			{ID: "p1_s1_o3", Text: "Прокручиваю в голове варианты, пока не найду лучший",
				AxisWeights:  map[string]float64{"A2": 0.7, "A4": -0.4},
				LayerWeights: map[string]float64{"L3": 0.7, "L4": 0.2}},
			{ID: "p1_s1_o4", Text: "Ищу, с кем это обсудить",
				AxisWeights:  map[string]float64{"A4": 0.8},
				LayerWeights: map[string]float64{"L2": 0.6, "L4": 0.3}},
		},
	},
	{
		ID:   "p1_s2",
		Text: "Как вы обычно понимаете, что устали?",
		Options: []Option{
			{ID: "p1_s2_o1", Text: "Тело сигналит первым: тяжесть, зажимы, сонливость",
				AxisWeights:  map[string]float64{"A1": 0.3, "A3": -0.5},
				LayerWeights: map[string]float64{"L0": 0.9}},
			{ID: "p1_s2_o2", Text: "Замечаю по раздражительности в общении",
				AxisWeights:  map[string]float64{"A3": -0.6, "A4": 0.4},
				LayerWeights: map[string]float64{"L1": 0.5, "L2": 0.5}},
			{ID: "p1_s2_o3", Text: "Понимаю задним числом, когда уже на пределе",
				AxisWeights:  map[string]float64{"A1": -0.4, "A2": -0.6},
				LayerWeights: map[string]float64{"L3": 0.6, "L0": 0.3}},
			{ID: "p1_s2_o4", Text: "Планирую отдых заранее, до усталости не дохожу",
				AxisWeights:  map[string]float64{"A2": 0.8, "A3": 0.5},
				LayerWeights: map[string]float64{"L4": 0.7, "L3": 0.2}},
		},
	},
	{
		ID:   "p1_s3",
		Text: "В отношениях с близкими вам важнее всего…",
		Options: []Option{
			{ID: "p1_s3_o1", Text: "Предсказуемость: знать, чего ждать",
				AxisWeights:  map[string]float64{"A2": 0.6, "A4": -0.5},
				LayerWeights: map[string]float64{"L2": 0.7, "L4": 0.2}},
			{ID: "p1_s3_o2", Text: "Живой отклик, даже если это конфликт",
				AxisWeights:  map[string]float64{"A1": 0.6, "A4": 0.6},
				LayerWeights: map[string]float64{"L1": 0.6, "L2": 0.3}},
			{ID: "p1_s3_o3", Text: "Возможность побыть отдельно и вернуться",
				AxisWeights:  map[string]float64{"A3": 0.7, "A4": -0.3},
				LayerWeights: map[string]float64{"L3": 0.5, "L2": 0.4}},
			{ID: "p1_s3_o4", Text: "Общий смысл: понимать, зачем мы вместе",
				AxisWeights:  map[string]float64{"A2": 0.4, "A4": 0.3},
				LayerWeights: map[string]float64{"L4": 0.9}},
		},
	},
	{
		ID:   "p1_s4",
		Text: "Когда что-то идёт не по плану, ваша первая внутренняя реакция…",
		Options: []Option{
			{ID: "p1_s4_o1", Text: "Досада на себя: надо было предусмотреть",
				AxisWeights:  map[string]float64{"A2": 0.5, "A3": -0.7},
				LayerWeights: map[string]float64{"L3": 0.6, "L1": 0.3}},
			{ID: "p1_s4_o2", Text: "Азарт: интересно, как выкручусь",
				AxisWeights:  map[string]float64{"A1": 0.7, "A3": 0.6},
				LayerWeights: map[string]float64{"L1": 0.5, "L0": 0.4}},
			{ID: "p1_s4_o3", Text: "Желание отложить и не думать об этом",
				AxisWeights:  map[string]float64{"A1": -0.7, "A2": -0.4},
				LayerWeights: map[string]float64{"L0": 0.5, "L3": 0.4}},
			{ID: "p1_s4_o4", Text: "Поиск виноватого, хотя потом неловко",
				AxisWeights:  map[string]float64{"A3": -0.5, "A4": 0.5},
				LayerWeights: map[string]float64{"L1": 0.7, "L2": 0.2}},
		},
	},
	{
		ID:   "p1_s5",
		Text: "Что из этого про ваши решения?",
		Options: []Option{
			{ID: "p1_s5_o1", Text: "Решаю быстро и редко пересматриваю",
				AxisWeights:  map[string]float64{"A1": 0.8, "A2": 0.3},
				LayerWeights: map[string]float64{"L1": 0.4, "L4": 0.5}},
			{ID: "p1_s5_o2", Text: "Долго взвешиваю, потом сомневаюсь",
				AxisWeights:  map[string]float64{"A1": -0.6, "A2": -0.5},
				LayerWeights: map[string]float64{"L3": 0.8}},
			{ID: "p1_s5_o3", Text: "Советуюсь, даже когда ответ уже знаю",
				AxisWeights:  map[string]float64{"A4": 0.8, "A1": -0.2},
				LayerWeights: map[string]float64{"L2": 0.8}},
			{ID: "p1_s5_o4", Text: "Сверяюсь с тем, что для меня главное",
				AxisWeights:  map[string]float64{"A2": 0.6, "A3": 0.4},
				LayerWeights: map[string]float64{"L4": 0.8}},
		},
	},
	{
		ID:   "p1_s6",
		Text: "Оглядываясь на последний год: что повторялось?",
		Options: []Option{
			{ID: "p1_s6_o1", Text: "Брал(а) на себя больше, чем вывозил(а)",
				AxisWeights:  map[string]float64{"A1": 0.5, "A3": -0.6},
				LayerWeights: map[string]float64{"L1": 0.4, "L4": 0.4}},
			{ID: "p1_s6_o2", Text: "Откладывал(а) важное ради срочного",
				AxisWeights:  map[string]float64{"A2": -0.6, "A1": 0.3},
				LayerWeights: map[string]float64{"L3": 0.5, "L4": 0.4}},
			{ID: "p1_s6_o3", Text: "Уходил(а) из контакта, когда становилось тяжело",
				AxisWeights:  map[string]float64{"A4": -0.8, "A3": 0.3},
				LayerWeights: map[string]float64{"L2": 0.8}},
			{ID: "p1_s6_o4", Text: "Держал(а) ровный курс, без сильных перекосов",
				AxisWeights:  map[string]float64{"A2": 0.5, "A3": 0.7},
				LayerWeights: map[string]float64{"L4": 0.5, "L3": 0.3}},
		},
	},
}

// phase2QuestionText holds the per-node reference formulations.
var phase2QuestionText = map[string]string{
	"A1_L0": "Когда тело требует паузы, а дело не ждёт - что побеждает чаще?",
	"A1_L1": "В эмоциональном всплеске вы скорее действуете или пережидаете?",
	"A1_L2": "Если близкий человек тянет с ответом, вы подталкиваете или ждёте?",
	"A1_L3": "Когда мысли ходят по кругу, вы прерываете их действием?",
	"A1_L4": "Большие цели вы начинаете сразу или долго примеряетесь?",
	"A2_L0": "Телесные привычки (сон, еда, спорт) у вас устойчивы или плавают?",
	"A2_L1": "Ваши эмоциональные реакции предсказуемы для вас самих?",
	"A2_L2": "В отношениях вы держите договорённости, даже когда неудобно?",
	"A2_L3": "Ваши выводы о себе стабильны или меняются от настроения?",
	"A2_L4": "Главные жизненные ориентиры у вас те же, что пять лет назад?",
	"A3_L0": "После физической перегрузки вы восстанавливаетесь быстро?",
	"A3_L1": "После сильной обиды вы отходите за часы или за дни?",
	"A3_L2": "После ссоры вы первым восстанавливаете контакт?",
	"A3_L3": "Ошибку в рассуждениях вы признаёте легко?",
	"A3_L4": "Если план рушится, вы быстро собираете новый?",
	"A4_L0": "Рядом с другими людьми вам физически спокойнее или теснее?",
	"A4_L1": "Делитесь ли вы чувствами, пока они ещё «горячие»?",
	"A4_L2": "Просить о помощи для вас естественно?",
	"A4_L3": "Вам думается лучше вслух с кем-то или наедине?",
	"A4_L4": "Ваши цели чаще «про себя» или «про нас»?",
}

// phase2Bank is derived from the formulations: a four-option agree/disagree
// template preserving the node's diagnostic split.
var phase2Bank = buildPhase2Bank()

func buildPhase2Bank() map[string]Screen {
	out := make(map[string]Screen, len(phase2QuestionText))
	for _, a := range Axes {
		for _, l := range Layers {
			node := NodeKey(a, l)
			text, ok := phase2QuestionText[node]
			if !ok {
				continue
			}
			out[node] = Screen{
				ID:   "p2_" + node,
				Text: text,
				Options: []Option{
					{ID: "p2_" + node + "_o1", Text: "Определённо первое",
						AxisWeights:  map[string]float64{a: 1.0},
						LayerWeights: map[string]float64{l: 0.9}},
					{ID: "p2_" + node + "_o2", Text: "Скорее первое",
						AxisWeights:  map[string]float64{a: 0.4},
						LayerWeights: map[string]float64{l: 0.7}},
					{ID: "p2_" + node + "_o3", Text: "Скорее второе",
						AxisWeights:  map[string]float64{a: -0.4},
						LayerWeights: map[string]float64{l: 0.7}},
					{ID: "p2_" + node + "_o4", Text: "Определённо второе",
						AxisWeights:  map[string]float64{a: -1.0},
						LayerWeights: map[string]float64{l: 0.9}},
				},
			}
		}
	}
	return out
}
