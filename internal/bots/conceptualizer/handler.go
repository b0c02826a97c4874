package conceptualizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/config"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/artifact"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/link"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/session"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// FSM states.
const (
	stateDataCollection   = "data_collection"
	stateSocraticDialogue = "socratic_dialogue"
	stateComplete         = "complete"
)

// Collection trigger and floor.
const (
	readyTrigger     = "готово"
	minObservationRunes = 120
	// substantiveTurnRunes separates material from chatter in the dialogue.
	substantiveTurnRunes = 30
)

// payload is the opaque FSM blob of one conceptualization session.
type payload struct {
	RunID        uuid.UUID    `json:"run_id"`
	Observations []string     `json:"observations"`
	Hypotheses   []Hypothesis `json:"hypotheses"`
	Turns        int          `json:"turns"`
	RedFlag      bool         `json:"red_flag"`
}

// Deps wires the handler.
type Deps struct {
	States    session.StateRepository
	Links     *link.Service
	Artifacts artifact.Repository
	Oracle    bots.Oracle
	TG        *telegram.Client
	Log       *logger.Logger
}

// Handler is the conceptualizer bot.
type Handler struct {
	d Deps
}

// New creates the handler.
func New(d Deps) *Handler {
	return &Handler{d: d}
}

// BotID implements bots.Handler.
func (h *Handler) BotID() string { return config.BotConceptualizator }

// Handle implements bots.Handler.
func (h *Handler) Handle(ctx context.Context, up *telegram.Update) error {
	msg := up.Message
	if msg == nil || msg.From == nil {
		return nil
	}
	chatID := msg.Chat.ID
	log := h.d.Log.With(logger.BotID(h.BotID()), logger.ChatID(chatID))

	if cmd := telegram.ExtractCommand(msg); cmd == "start" {
		return h.handleStart(ctx, chatID, msg, log)
	}

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	if !sess.Found() || sess.State == stateComplete {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Сессия не активна. Откройте бота по ссылке из кабинета специалиста.")
		return err
	}

	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		_, err := h.d.TG.SendText(ctx, chatID, "Пришлите наблюдения текстом.")
		return err
	}

	switch sess.State {
	case stateDataCollection:
		return h.handleCollection(ctx, sess, &p, text, log)
	case stateSocraticDialogue:
		return h.handleDialogue(ctx, sess, &p, text, log)
	default:
		log.Warn("unknown fsm state", logger.State(sess.State))
		return nil
	}
}

// handleStart verifies the deep-link token and opens collection.
func (h *Handler) handleStart(ctx context.Context, chatID int64, msg *telegram.Message, log *logger.Logger) error {
	raw := strings.TrimSpace(telegram.ExtractCommandArgs(msg))
	if raw == "" {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Концептуализатор работает по одноразовой ссылке из кабинета специалиста.")
		return err
	}

	token, err := h.d.Links.Verify(ctx, raw, h.BotID(), identity.TelegramID(msg.From.ID))
	if err != nil {
		if link.IsVerificationError(err) {
			_, sendErr := h.d.TG.SendText(ctx, chatID, verificationReply(err))
			return sendErr
		}
		return err
	}

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	sess.UserID = identity.TelegramID(msg.From.ID)
	sess.Role = token.Role
	sess.State = stateDataCollection
	sess.ContextID = &token.ContextID
	if err := sess.Save(ctx, payload{RunID: token.RunID}); err != nil {
		return err
	}

	log.Info("conceptualization session opened", logger.RunID(token.RunID.String()))
	_, err = h.d.TG.SendText(ctx, chatID,
		"Сессия открыта. Присылайте наблюдения по случаю (можно несколькими сообщениями). Когда закончите, напишите «готово».")
	return err
}

// handleCollection accumulates the observation blob until the trigger.
func (h *Handler) handleCollection(ctx context.Context, sess *bots.Session, p *payload, text string, log *logger.Logger) error {
	if strings.EqualFold(text, readyTrigger) {
		blob := strings.Join(p.Observations, "\n")
		if len([]rune(blob)) < minObservationRunes {
			_, err := h.d.TG.SendText(ctx, sess.ChatID,
				"Наблюдений пока мало. Добавьте ещё пару конкретных эпизодов, затем снова напишите «готово».")
			return err
		}
		sess.State = stateSocraticDialogue
		if err := sess.Save(ctx, p); err != nil {
			return err
		}
		_, err := h.d.TG.SendText(ctx, sess.ChatID,
			"Принято. Начинаем разбор.\n\n"+NextAction(p.Hypotheses, p.Turns).Question(p.Hypotheses))
		return err
	}

	if HasRedFlag(text) {
		p.RedFlag = true
	}
	p.Observations = append(p.Observations, text)
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	_, err := h.d.TG.SendText(ctx, sess.ChatID, "Записал. Продолжайте или напишите «готово».")
	return err
}

// handleDialogue runs one socratic turn: extract, decide, ask or finish.
func (h *Handler) handleDialogue(ctx context.Context, sess *bots.Session, p *payload, text string, log *logger.Logger) error {
	p.Turns++

	if HasRedFlag(text) {
		p.RedFlag = true
	}

	if isSubstantive(text) {
		hyp, err := h.extract(ctx, p, text)
		if err != nil {
			log.Warn("hypothesis extraction failed", logger.Err(err))
			if err := sess.Save(ctx, p); err != nil {
				return err
			}
			_, sendErr := h.d.TG.SendText(ctx, sess.ChatID,
				"Не удалось обработать реплику. Переформулируйте, пожалуйста, или продолжите другим наблюдением.")
			return sendErr
		}
		p.Hypotheses = append(p.Hypotheses, *hyp)
	}

	stop := p.Turns >= MaxTurns || CanProceed(p.Hypotheses) || p.RedFlag
	if stop {
		return h.finish(ctx, sess, p, log)
	}

	question := NextAction(p.Hypotheses, p.Turns).Question(p.Hypotheses)
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	_, err := h.d.TG.SendText(ctx, sess.ChatID, question)
	return err
}

// extract runs the extraction prompt and applies the managerial override.
func (h *Handler) extract(ctx context.Context, p *payload, text string) (*Hypothesis, error) {
	user := "Наблюдения:\n" + strings.Join(p.Observations, "\n") + "\n\nРеплика специалиста:\n" + text

	reply, err := h.d.Oracle.Ask(ctx, extractionPrompt, user, 500)
	if err != nil {
		return nil, err
	}

	var hyp Hypothesis
	if err := bots.ExtractJSON(reply, &hyp); err != nil {
		return nil, fmt.Errorf("extraction output: %w", err)
	}
	if !hyp.Type.IsValid() {
		hyp.Type = TypeFunctional
	}
	if hyp.Confidence < 0 {
		hyp.Confidence = 0
	}
	if hyp.Confidence > 1 {
		hyp.Confidence = 1
	}
	ApplyManagerialOverride(&hyp)
	return &hyp, nil
}

// finish produces the three-layer conceptualization and closes the session.
func (h *Handler) finish(ctx context.Context, sess *bots.Session, p *payload, log *logger.Logger) error {
	if p.RedFlag {
		_, err := h.d.TG.SendText(ctx, sess.ChatID,
			"В материале есть маркеры риска. Концептуализация остановлена: приоритет - прямая работа с безопасностью клиента.")
		if err != nil {
			return err
		}
	}

	material := h.renderMaterial(p)

	layerA, err := h.d.Oracle.Ask(ctx, layerAPrompt, material, 1500)
	if err != nil {
		return h.oracleDown(ctx, sess.ChatID, err, log)
	}
	layerB, err := h.d.Oracle.Ask(ctx, layerBPrompt, material, 1500)
	if err != nil {
		return h.oracleDown(ctx, sess.ChatID, err, log)
	}
	layerC, err := h.d.Oracle.Ask(ctx, layerCPrompt, material, 1500)
	if err != nil {
		return h.oracleDown(ctx, sess.ChatID, err, log)
	}

	for _, part := range []struct{ title, body string }{
		{"Слой A. Структура случая", layerA},
		{"Слой B. Функциональный анализ", layerB},
		{"Слой C. Рабочие направления", layerC},
	} {
		if _, err := h.d.TG.SendText(ctx, sess.ChatID, part.title+"\n\n"+strings.TrimSpace(part.body)); err != nil {
			return err
		}
	}

	sess.State = stateComplete
	if err := sess.Save(ctx, p); err != nil {
		return err
	}

	if sess.ContextID != nil {
		raw, err := json.Marshal(map[string]interface{}{
			"layer_a": strings.TrimSpace(layerA),
			"layer_b": strings.TrimSpace(layerB),
			"layer_c": strings.TrimSpace(layerC),
			"meta": map[string]interface{}{
				"run_id":     p.RunID.String(),
				"turns":      p.Turns,
				"hypotheses": p.Hypotheses,
				"red_flag":   p.RedFlag,
			},
		})
		if err != nil {
			return err
		}
		bots.SaveArtifact(ctx, h.d.Artifacts, log, &artifact.Artifact{
			ContextID:            *sess.ContextID,
			ServiceID:            h.BotID(),
			RunID:                p.RunID,
			SpecialistTelegramID: int64(sess.UserID),
			Payload:              raw,
			Summary:              fmt.Sprintf("Концептуализация: %d гипотез, %d ходов", len(p.Hypotheses), p.Turns),
		})
	}

	log.Info("conceptualization completed",
		logger.RunID(p.RunID.String()), logger.Int("hypotheses", len(p.Hypotheses)), logger.Int("turns", p.Turns))
	return nil
}

func (h *Handler) renderMaterial(p *payload) string {
	var b strings.Builder
	b.WriteString("Наблюдения:\n" + strings.Join(p.Observations, "\n") + "\n\nГипотезы:\n")
	for i, hyp := range p.Hypotheses {
		fmt.Fprintf(&b, "%d. [%s, %.2f, уровни %s] %s\n",
			i+1, hyp.Type, hyp.Confidence, strings.Join(hyp.Levels, ","), hyp.Formulation)
	}
	return b.String()
}

func (h *Handler) oracleDown(ctx context.Context, chatID int64, err error, log *logger.Logger) error {
	log.Error("oracle failure", logger.Err(err))
	_, sendErr := h.d.TG.SendText(ctx, chatID, bots.ErrTryLater)
	return sendErr
}

// isSubstantive separates material from clarification requests.
func isSubstantive(text string) bool {
	if len([]rune(text)) <= substantiveTurnRunes {
		return false
	}
	trimmed := strings.TrimSpace(text)
	return !strings.HasSuffix(trimmed, "?")
}

// verificationReply maps a verification error to its user-visible reason.
func verificationReply(err error) string {
	switch {
	case errors.Is(err, link.ErrAlreadyUsed):
		return "Эта ссылка уже использована. Запросите новую в кабинете специалиста."
	case errors.Is(err, link.ErrExpired):
		return "Срок действия ссылки истёк. Запросите новую."
	case errors.Is(err, link.ErrWrongService):
		return "Эта ссылка выпущена для другого сервиса."
	case errors.Is(err, link.ErrWrongUser):
		return "Эта ссылка выпущена для другого пользователя."
	case errors.Is(err, link.ErrClientService):
		return "Клиентская ссылка действует только для скрининга."
	case errors.Is(err, link.ErrNotFound):
		return "Ссылка не найдена. Проверьте, что она скопирована целиком."
	default:
		return "Ссылка не распознана. Проверьте формат."
	}
}
