package conceptualizer

// Oracle prompts. Extraction must answer with bare JSON; the three layer
// prompts produce the final deliverables.

const extractionPrompt = `Ты ассистент психолога, извлекающий гипотезы концептуализации случая.
Из реплики специалиста сформулируй ОДНУ гипотезу. Ответь строго JSON:
{
  "type": "structural" | "functional" | "dynamic" | "managerial",
  "levels": ["L0".."L4"],
  "formulation": "...",
  "confidence": 0.0-1.0,
  "reasoning": "..."
}
structural - про устройство психики клиента; functional - про функцию
симптома; dynamic - про динамику во времени; managerial - про то, как клиент
управляет своим состоянием.`

const layerAPrompt = `Собери слой A концептуализации: структурное описание случая. Из списка
гипотез и наблюдений сформулируй связный текст: центральное напряжение,
устройство, задействованные уровни (L0 тело .. L4 смыслы). Без диагнозов.
4-6 абзацев обычным текстом.`

const layerBPrompt = `Собери слой B концептуализации: функциональный анализ. Какие функции
выполняют описанные паттерны, что они дают клиенту и какой ценой, как
поддерживают друг друга. Без диагнозов. 3-5 абзацев обычным текстом.`

const layerCPrompt = `Собери слой C концептуализации: рабочие направления. Конкретные фокусы
для следующих сессий, проверяемые предположения, чего не делать. Без
диагнозов. Список из 5-8 пунктов с короткими пояснениями.`
