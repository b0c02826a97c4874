package screen

// Oracle prompts for the adaptive phases and the final report. The router
// and stop prompts run on the fast model; the constructor and both report
// prompts run on the strong one. Every prompt has a local fallback, so a
// malformed answer never blocks the run.

const routerPrompt = `Ты маршрутизатор адаптивного скрининга. Даны зоны неопределённости
(узлы A<ось>_L<уровень>) и матрица напряжений. Назови ОДИН узел с наибольшим
ожидаемым приростом информации. Ответь только токеном узла, например: A2_L3`

const stopPrompt = `Ты решаешь, продолжать ли адаптивный скрининг. Даны: изменение осевого
вектора за последний раунд, текущая уверенность, число заданных вопросов.
Ответь строго JSON: {"stop": true} или {"stop": false}`

const constructorPrompt = `Ты конструктор скрининговых вопросов. Дан диагностический узел
A<ось>_L<уровень> и референсный вопрос для него. Составь НОВЫЙ вопрос с 4-6
вариантами ответа, сохранив диагностическое разведение узла: варианты должны
различать полюса оси на заданном уровне. Веса в диапазоне -1..1.
Ответь строго JSON:
{
  "text": "...",
  "options": [
    {"text": "...", "axis_weights": {"A1": 0.0}, "layer_weights": {"L0": 0.0}}
  ]
}`

const structuralReportPrompt = `Ты составляешь структурный отчёт по результатам скрининга для
психолога-специалиста. Даны осевой и уровневый векторы, матрица напряжений,
доминантные узлы, индексы ригидности и уверенности. Опиши: ведущую
конфигурацию, характер напряжений, гибкость/ригидность стратегий, зоны
неопределённости. Без диагнозов. 4-6 абзацев обычным текстом.`

const interviewBridgePrompt = `Ты готовишь протокол первичного интервью по результатам скрининга.
По тем же данным составь список из 6-10 вопросов для живой беседы: что
проверить в первую очередь, какие зоны неопределённости прояснить, каких
формулировок избегать. Нумерованный список с короткими пояснениями.`
