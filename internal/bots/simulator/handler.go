package simulator

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
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/simulation"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// FSM states. Setup advances mode → case → goal (training) or
// mode → upload → crisis → goal (practice).
const (
	stateModeSelect   = "mode_select"
	stateCaseSelect   = "case_select"
	stateUpload       = "upload"
	stateCrisisSelect = "crisis_select"
	stateGoalInput    = "goal_input"
	stateSession      = "session"
	stateComplete     = "complete"
)

// Modes.
const (
	modeTraining = "training"
	modePractice = "practice"
)

// rollingWindow caps how many past turns travel to the oracle.
const rollingWindow = 12

// minUploadRunes is the floor for a practice-mode case description.
const minUploadRunes = 100

// payload is the opaque FSM blob of one simulation session.
type payload struct {
	RunID      uuid.UUID   `json:"run_id"`
	Mode       string      `json:"mode,omitempty"`
	CaseID     string      `json:"case_id,omitempty"`
	Persona    string      `json:"persona,omitempty"`
	Dynamics   Dynamics    `json:"dynamics"`
	Goal       string      `json:"goal,omitempty"`
	CCI        float64     `json:"cci"`
	Iterations []Iteration `json:"iterations,omitempty"`
	TrustDelta int         `json:"trust_delta"`
}

func (p *payload) signalCounts() (green, yellow, red int) {
	for _, it := range p.Iterations {
		switch it.Supervisor.Signal {
		case SignalYellow:
			yellow++
		case SignalRed:
			red++
		default:
			green++
		}
	}
	return
}

// Deps wires the handler.
type Deps struct {
	States    session.StateRepository
	Links     *link.Service
	Artifacts artifact.Repository
	Profiles  simulation.ProfileRepository
	Oracle    bots.Oracle
	TG        *telegram.Client
	Log       *logger.Logger
}

// Handler is the simulator bot.
type Handler struct {
	d Deps
}

// New creates the handler.
func New(d Deps) *Handler {
	return &Handler{d: d}
}

// BotID implements bots.Handler.
func (h *Handler) BotID() string { return config.BotSimulator }

// Handle implements bots.Handler.
func (h *Handler) Handle(ctx context.Context, up *telegram.Update) error {
	if cq := up.CallbackQuery; cq != nil {
		return h.handleCallback(ctx, cq)
	}
	msg := up.Message
	if msg == nil || msg.From == nil {
		return nil
	}
	chatID := msg.Chat.ID
	log := h.d.Log.With(logger.BotID(h.BotID()), logger.ChatID(chatID))

	switch telegram.ExtractCommand(msg) {
	case "start":
		return h.handleStart(ctx, chatID, msg, log)
	case "end":
		return h.handleEnd(ctx, chatID, log)
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
	switch sess.State {
	case stateUpload:
		return h.handleUpload(ctx, sess, &p, text)
	case stateGoalInput:
		return h.handleGoal(ctx, sess, &p, text)
	case stateSession:
		return h.handleTurn(ctx, sess, &p, text, log)
	case stateModeSelect, stateCaseSelect, stateCrisisSelect:
		_, err := h.d.TG.SendText(ctx, chatID, "Выберите вариант кнопкой выше.")
		return err
	default:
		log.Warn("unknown fsm state", logger.State(sess.State))
		return nil
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Setup flow
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleStart(ctx context.Context, chatID int64, msg *telegram.Message, log *logger.Logger) error {
	raw := strings.TrimSpace(telegram.ExtractCommandArgs(msg))
	if raw == "" {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Симулятор работает по одноразовой ссылке из кабинета специалиста.")
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
	sess.State = stateModeSelect
	sess.ContextID = &token.ContextID
	if err := sess.Save(ctx, payload{RunID: token.RunID}); err != nil {
		return err
	}

	log.Info("simulation session opened", logger.RunID(token.RunID.String()))
	kb := telegram.NewKeyboard().
		Row(telegram.Button("Тренировка (готовый случай)", "mode:"+modeTraining)).
		Row(telegram.Button("Практика (свой случай)", "mode:"+modePractice)).
		Build()
	_, err = h.d.TG.SendWithKeyboard(ctx, chatID, "Выберите режим сессии:", kb.InlineKeyboard)
	return err
}

func (h *Handler) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
		return nil
	}
	chatID := cq.Message.Chat.ID
	log := h.d.Log.With(logger.BotID(h.BotID()), logger.ChatID(chatID))

	if err := h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false); err != nil {
		log.Warn("answer callback failed", logger.Err(err))
	}

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	if !sess.Found() {
		return nil
	}
	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}

	action, value, _ := strings.Cut(cq.Data, ":")
	switch {
	case sess.State == stateModeSelect && action == "mode":
		return h.applyMode(ctx, sess, &p, value)
	case sess.State == stateCaseSelect && action == "case":
		return h.applyCase(ctx, sess, &p, value)
	case sess.State == stateCrisisSelect && action == "crisis":
		return h.applyCrisis(ctx, sess, &p, Level(value))
	default:
		// Stale button from an earlier step.
		return nil
	}
}

func (h *Handler) applyMode(ctx context.Context, sess *bots.Session, p *payload, mode string) error {
	switch mode {
	case modeTraining:
		p.Mode = modeTraining
		sess.State = stateCaseSelect
		if err := sess.Save(ctx, p); err != nil {
			return err
		}
		kb := telegram.NewKeyboard()
		for _, c := range Cases() {
			kb.Row(telegram.Button(c.Title, "case:"+c.ID))
		}
		_, err := h.d.TG.SendWithKeyboard(ctx, sess.ChatID, "Выберите учебный случай:", kb.Build().InlineKeyboard)
		return err
	case modePractice:
		p.Mode = modePractice
		sess.State = stateUpload
		if err := sess.Save(ctx, p); err != nil {
			return err
		}
		_, err := h.d.TG.SendText(ctx, sess.ChatID,
			"Опишите свой случай одним сообщением: кто клиент, с чем приходит, как себя ведёт.")
		return err
	default:
		return nil
	}
}

func (h *Handler) applyCase(ctx context.Context, sess *bots.Session, p *payload, caseID string) error {
	c, ok := CaseByID(caseID)
	if !ok {
		_, err := h.d.TG.SendText(ctx, sess.ChatID, "Случай не найден. Выберите из списка выше.")
		return err
	}
	p.CaseID = c.ID
	p.Persona = c.Persona
	p.Dynamics = c.Dynamics
	p.CCI = c.Dynamics.CCI()
	sess.State = stateGoalInput
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	_, err := h.d.TG.SendText(ctx, sess.ChatID,
		fmt.Sprintf("Случай «%s» (сложность %.2f).\n\nСформулируйте цель тренировки одним сообщением.", c.Title, p.CCI))
	return err
}

func (h *Handler) handleUpload(ctx context.Context, sess *bots.Session, p *payload, text string) error {
	if len([]rune(text)) < minUploadRunes {
		_, err := h.d.TG.SendText(ctx, sess.ChatID,
			"Описание слишком короткое. Добавьте, как клиент себя ведёт и на что реагирует.")
		return err
	}
	p.Persona = text
	sess.State = stateCrisisSelect
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	kb := telegram.NewKeyboard().
		Row(telegram.Button("Низкий", "crisis:"+string(LevelLow))).
		Row(telegram.Button("Средний", "crisis:"+string(LevelModerate))).
		Row(telegram.Button("Высокий", "crisis:"+string(LevelHigh))).
		Build()
	_, err := h.d.TG.SendWithKeyboard(ctx, sess.ChatID, "Оцените уровень кризисности случая:", kb.InlineKeyboard)
	return err
}

func (h *Handler) applyCrisis(ctx context.Context, sess *bots.Session, p *payload, crisis Level) error {
	switch crisis {
	case LevelLow, LevelModerate, LevelHigh:
	default:
		return nil
	}
	p.Dynamics = uploadDynamics(crisis)
	p.CCI = p.Dynamics.CCI()
	sess.State = stateGoalInput
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	_, err := h.d.TG.SendText(ctx, sess.ChatID,
		fmt.Sprintf("Принято (сложность %.2f). Сформулируйте цель тренировки одним сообщением.", p.CCI))
	return err
}

func (h *Handler) handleGoal(ctx context.Context, sess *bots.Session, p *payload, text string) error {
	if text == "" {
		_, err := h.d.TG.SendText(ctx, sess.ChatID, "Сформулируйте цель текстом.")
		return err
	}
	p.Goal = text
	sess.State = stateSession
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	_, err := h.d.TG.SendText(ctx, sess.ChatID,
		"Сессия началась. Пишите как на реальной встрече: клиент ответит. Завершить и получить отчёт: /end.")
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Session loop
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleTurn(ctx context.Context, sess *bots.Session, p *payload, text string, log *logger.Logger) error {
	if text == "" {
		_, err := h.d.TG.SendText(ctx, sess.ChatID, "Клиент ждёт вашей реплики.")
		return err
	}

	system := sessionSystemPrompt(p.Persona, p.Dynamics, p.Goal)
	reply, err := h.d.Oracle.Ask(ctx, system, renderTranscript(p.Iterations, text), 1200)
	if err != nil {
		log.Error("oracle failure", logger.Err(err))
		_, sendErr := h.d.TG.SendText(ctx, sess.ChatID, bots.ErrTryLater)
		return sendErr
	}

	visible, sup := ParseTurn(reply)
	p.Iterations = append(p.Iterations, Iteration{Therapist: text, Client: visible, Supervisor: sup})
	p.TrustDelta += sup.Deltas.Trust

	if err := sess.Save(ctx, p); err != nil {
		return err
	}

	out := visible
	if sup.Crisis {
		out += "\n\n⚠ Супервизор: кризисный маркер. Проверьте безопасность клиента, прежде чем продолжать."
	}
	_, err = h.d.TG.SendText(ctx, sess.ChatID, out)
	return err
}

// renderTranscript folds the rolling window plus the new therapist line
// into one oracle user message.
func renderTranscript(its []Iteration, next string) string {
	start := 0
	if len(its) > rollingWindow {
		start = len(its) - rollingWindow
	}
	var b strings.Builder
	for _, it := range its[start:] {
		b.WriteString("Т: " + it.Therapist + "\nК: " + it.Client + "\n")
	}
	b.WriteString("Т: " + next)
	return b.String()
}

// ──────────────────────────────────────────────────────────────────────────────
// Report
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleEnd(ctx context.Context, chatID int64, log *logger.Logger) error {
	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	if !sess.Found() || sess.State != stateSession {
		_, err := h.d.TG.SendText(ctx, chatID, "Нет активной сессии для завершения.")
		return err
	}
	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}
	if len(p.Iterations) == 0 {
		_, err := h.d.TG.SendText(ctx, chatID, "Сессия пуста: ни одного хода. Напишите клиенту или начните заново по новой ссылке.")
		return err
	}

	report, err := h.d.Oracle.Ask(ctx, reportPrompt, fullTranscript(&p), 2500)
	if err != nil {
		log.Error("oracle failure", logger.Err(err))
		_, sendErr := h.d.TG.SendText(ctx, chatID, bots.ErrTryLater)
		return sendErr
	}

	comps := ParseTSIComponents(report)
	tsi := comps.TSI()
	band := Band(tsi)
	green, yellow, red := p.signalCounts()
	turns := len(p.Iterations)

	profile, err := h.d.Profiles.Get(ctx, sess.UserID)
	if err != nil {
		log.Error("profile load failed", logger.Err(err))
		profile = &simulation.Profile{SpecialistTelegramID: sess.UserID}
	}
	profile.Record(simulation.SessionResult{
		TSI:         tsi,
		GreenRatio:  float64(green) / float64(turns),
		YellowRatio: float64(yellow) / float64(turns),
		RedRatio:    float64(red) / float64(turns),
		TrustDelta:  float64(p.TrustDelta),
	}, timeutil.Now())
	if err := h.d.Profiles.Upsert(ctx, profile); err != nil {
		log.Error("profile upsert failed", logger.Err(err))
	}

	doc := renderReportDocument(&p, report, comps, tsi, band, profile)

	sess.State = stateComplete
	if err := sess.Save(ctx, &p); err != nil {
		return err
	}

	if _, err := h.d.TG.SendDocument(ctx, chatID, "session_report.txt", []byte(doc),
		fmt.Sprintf("TSI %.2f — %s", tsi, band)); err != nil {
		return err
	}

	if sess.ContextID != nil {
		raw, err := json.Marshal(map[string]interface{}{
			"tsi":           tsi,
			"cci":           p.CCI,
			"session_turns": turns,
			"report_text":   doc,
			"profile":       profile,
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
			Summary:              fmt.Sprintf("Симуляция: TSI %.2f (%s), CCI %.2f, %d ходов", tsi, band, p.CCI, turns),
		})
	}

	log.Info("simulation completed",
		logger.RunID(p.RunID.String()),
		logger.Float64("tsi", tsi),
		logger.Float64("cci", p.CCI),
		logger.Int("turns", turns))
	return nil
}

func fullTranscript(p *payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Сложность случая (CCI): %.2f. Цель тренировки: %s.\n\nСтенограмма:\n", p.CCI, p.Goal)
	for _, it := range p.Iterations {
		fmt.Fprintf(&b, "Т: %s\nК: %s\n[сигнал %s, слой %s, попадание %.2f]\n",
			it.Therapist, it.Client, it.Supervisor.Signal, it.Supervisor.Layer, it.Supervisor.Match)
	}
	return b.String()
}

func renderReportDocument(p *payload, report string, comps TSIComponents, tsi float64, band string, profile *simulation.Profile) string {
	green, yellow, red := p.signalCounts()
	var b strings.Builder
	b.WriteString("ОТЧЁТ ПО УЧЕБНОЙ СЕССИИ\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Сложность случая (CCI): %.2f\nХодов: %d\nСигналы: %d зелёных, %d жёлтых, %d красных\nΔ доверия: %+d\n\n",
		p.CCI, len(p.Iterations), green, yellow, red, p.TrustDelta)
	fmt.Fprintf(&b, "ИНДЕКС УСТОЙЧИВОСТИ (TSI): %.2f — %s\n", tsi, band)
	fmt.Fprintf(&b, "  точность интервенций:      %.2f\n", comps.RMatch)
	fmt.Fprintf(&b, "  согласованность уровней:   %.2f\n", comps.LConsistency)
	fmt.Fprintf(&b, "  альянс:                    %.2f\n", comps.Alliance)
	fmt.Fprintf(&b, "  работа с неопределённостью: %.2f\n", comps.UncertaintyModulation)
	fmt.Fprintf(&b, "  реактивность терапевта:    %.2f\n\n", comps.TherapistReactivity)
	b.WriteString("АНАЛИЗ СУПЕРВИЗОРА\n" + strings.Repeat("-", 40) + "\n" + strings.TrimSpace(report) + "\n\n")
	fmt.Fprintf(&b, "ПРОФИЛЬ СПЕЦИАЛИСТА\nСессий: %d\nСредний TSI: %.2f\nСредняя доля зелёных сигналов: %.2f\n",
		profile.SessionsCount, profile.AvgTSI, profile.AvgGreenRatio)
	return b.String()
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
