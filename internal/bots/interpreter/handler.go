package interpreter

import (
	"context"
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
	stateActive        = "active"
	stateIntake        = "intake"
	stateClarification = "clarification_loop"
	stateCompleted     = "completed"
)

// maxClarifications bounds the clarification loop before interpretation is
// forced.
const maxClarifications = 2

// intakeQuestionMaxLen separates a short clarifying question from a verdict.
const intakeQuestionMaxLen = 300

// payload is the opaque FSM blob of one interpretation session.
type payload struct {
	RunID          uuid.UUID `json:"run_id"`
	Mode           Mode      `json:"mode"`
	Material       []string  `json:"material"`
	Clarifications int       `json:"clarifications"`
	ParseFailures  int       `json:"parse_failures"`
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

// Handler is the interpreter bot.
type Handler struct {
	d Deps
}

// New creates the handler.
func New(d Deps) *Handler {
	return &Handler{d: d}
}

// BotID implements bots.Handler.
func (h *Handler) BotID() string { return config.BotInterpretator }

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
	if !sess.Found() || sess.State == stateCompleted {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Эта сессия не активна. Откройте бота по ссылке из кабинета специалиста.")
		return err
	}

	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		_, err := h.d.TG.SendText(ctx, chatID, "Пришлите материал сессии текстом.")
		return err
	}

	switch sess.State {
	case stateActive, stateIntake:
		return h.handleMaterial(ctx, sess, &p, text, log)
	case stateClarification:
		return h.handleClarification(ctx, sess, &p, text, log)
	default:
		log.Warn("unknown fsm state", logger.State(sess.State))
		return nil
	}
}

// handleStart verifies the deep-link token and opens the session.
func (h *Handler) handleStart(ctx context.Context, chatID int64, msg *telegram.Message, log *logger.Logger) error {
	raw := strings.TrimSpace(telegram.ExtractCommandArgs(msg))
	if raw == "" {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Интерпретатор работает по одноразовой ссылке из кабинета специалиста.")
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
	sess.State = stateActive
	sess.ContextID = &token.ContextID
	if err := sess.Save(ctx, payload{RunID: token.RunID, Mode: ModeStandard}); err != nil {
		return err
	}

	log.Info("interpretation session opened", logger.RunID(token.RunID.String()))
	_, err = h.d.TG.SendText(ctx, chatID,
		"Сессия открыта. Пришлите материал: заметки, расшифровку или описание того, что происходило с клиентом.")
	return err
}

// handleMaterial accumulates material and decides between intake question,
// clarification, and interpretation.
func (h *Handler) handleMaterial(ctx context.Context, sess *bots.Session, p *payload, text string, log *logger.Logger) error {
	p.Material = append(p.Material, text)
	material := strings.Join(p.Material, "\n\n")

	reply, err := h.d.Oracle.AskFast(ctx, intakePrompt, material, 300)
	if err != nil {
		return h.oracleDown(ctx, sess.ChatID, err, log)
	}
	reply = strings.TrimSpace(reply)

	if len(reply) < intakeQuestionMaxLen && strings.Contains(reply, "?") {
		sess.State = stateIntake
		if err := sess.Save(ctx, p); err != nil {
			return err
		}
		_, err = h.d.TG.SendText(ctx, sess.ChatID, reply)
		return err
	}

	completeness := h.checkMaterial(ctx, material, log)
	if completeness == MaterialSufficient {
		return h.interpret(ctx, sess, p, material, log)
	}

	if completeness == MaterialFragmentary {
		p.Mode = ModeLowData
	}
	sess.State = stateClarification
	p.Clarifications++
	if err := sess.Save(ctx, p); err != nil {
		return err
	}

	question, err := h.d.Oracle.AskFast(ctx, clarificationPrompt, material, 200)
	if err != nil || strings.TrimSpace(question) == "" {
		question = "Опишите, пожалуйста, конкретную ситуацию: что клиент делал, чувствовал и говорил?"
	}
	_, err = h.d.TG.SendText(ctx, sess.ChatID, strings.TrimSpace(question))
	return err
}

// handleClarification folds the answer in and forces interpretation once the
// loop budget is spent.
func (h *Handler) handleClarification(ctx context.Context, sess *bots.Session, p *payload, text string, log *logger.Logger) error {
	p.Material = append(p.Material, text)
	material := strings.Join(p.Material, "\n\n")

	if p.Clarifications >= maxClarifications {
		return h.interpret(ctx, sess, p, material, log)
	}

	completeness := h.checkMaterial(ctx, material, log)
	if completeness == MaterialSufficient {
		return h.interpret(ctx, sess, p, material, log)
	}

	p.Clarifications++
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	question, err := h.d.Oracle.AskFast(ctx, clarificationPrompt, material, 200)
	if err != nil || strings.TrimSpace(question) == "" {
		question = "Что в этой ситуации повторяется от встречи к встрече?"
	}
	_, err = h.d.TG.SendText(ctx, sess.ChatID, strings.TrimSpace(question))
	return err
}

// checkMaterial classifies completeness, degrading to a length heuristic
// when the oracle output is unusable.
func (h *Handler) checkMaterial(ctx context.Context, material string, log *logger.Logger) MaterialCompleteness {
	reply, err := h.d.Oracle.AskFast(ctx, materialCheckPrompt, material, 200)
	if err == nil {
		var verdict struct {
			Completeness string `json:"completeness"`
		}
		if bots.ExtractJSON(reply, &verdict) == nil {
			switch MaterialCompleteness(verdict.Completeness) {
			case MaterialSufficient, MaterialPartial, MaterialFragmentary:
				return MaterialCompleteness(verdict.Completeness)
			}
		}
		lower := strings.ToLower(reply)
		switch {
		case strings.Contains(lower, "sufficient"):
			return MaterialSufficient
		case strings.Contains(lower, "fragmentary"):
			return MaterialFragmentary
		case strings.Contains(lower, "partial"):
			return MaterialPartial
		}
	}
	log.Warn("material check fell back to length heuristic", logger.Err(err))

	switch n := len([]rune(material)); {
	case n > 800:
		return MaterialSufficient
	case n > 200:
		return MaterialPartial
	default:
		return MaterialFragmentary
	}
}

// interpret runs the interpretation prompt, enforces the policy, and
// delivers the result as two documents.
func (h *Handler) interpret(ctx context.Context, sess *bots.Session, p *payload, material string, log *logger.Logger) error {
	out, err := h.callInterpretation(ctx, p.Mode, material)
	if err != nil {
		// One mode downgrade, then a user-visible failure. State is kept so
		// the specialist can resend the last message.
		if p.Mode == ModeStandard {
			log.Warn("interpretation parse failed, retrying in low-data mode", logger.Err(err))
			p.Mode = ModeLowData
			out, err = h.callInterpretation(ctx, p.Mode, material)
		}
		if err != nil {
			return h.oracleDown(ctx, sess.ChatID, err, log)
		}
	}

	out.Meta = Meta{Mode: p.Mode, Clarifications: p.Clarifications, RunID: p.RunID.String()}
	Enforce(out, p.Mode)

	text := renderText(out)
	if _, err := h.d.TG.SendDocument(ctx, sess.ChatID, "interpretation.txt", []byte(text),
		"Интерпретация готова."); err != nil {
		return err
	}
	raw, err := out.MarshalPayload()
	if err != nil {
		return err
	}
	if _, err := h.d.TG.SendDocument(ctx, sess.ChatID, "interpretation.json", raw, ""); err != nil {
		return err
	}

	sess.State = stateCompleted
	if err := sess.Save(ctx, p); err != nil {
		return err
	}

	if sess.ContextID != nil {
		bots.SaveArtifact(ctx, h.d.Artifacts, log, &artifact.Artifact{
			ContextID:            *sess.ContextID,
			ServiceID:            h.BotID(),
			RunID:                p.RunID,
			SpecialistTelegramID: int64(sess.UserID),
			Payload:              raw,
			Summary:              summarize(out),
		})
	}

	log.Info("interpretation completed",
		logger.RunID(p.RunID.String()), logger.String("mode", string(p.Mode)))
	return nil
}

// callInterpretation performs one oracle call and parse.
func (h *Handler) callInterpretation(ctx context.Context, mode Mode, material string) (*Output, error) {
	prompt := interpretationPrompt
	if mode == ModeLowData {
		prompt = lowDataPrompt
	}

	reply, err := h.d.Oracle.Ask(ctx, prompt, material, 2000)
	if err != nil {
		return nil, err
	}

	var out Output
	if err := bots.ExtractJSON(reply, &out); err != nil {
		return nil, fmt.Errorf("interpretation output: %w", err)
	}
	if len(out.InterpretativeHypotheses) == 0 {
		return nil, fmt.Errorf("interpretation output: no hypotheses")
	}
	return &out, nil
}

func (h *Handler) oracleDown(ctx context.Context, chatID int64, err error, log *logger.Logger) error {
	log.Error("oracle failure", logger.Err(err))
	_, sendErr := h.d.TG.SendText(ctx, chatID, bots.ErrTryLater)
	return sendErr
}

// renderText formats the output for the human-readable document.
func renderText(o *Output) string {
	var b strings.Builder
	b.WriteString("ФЕНОМЕНОЛОГИЧЕСКАЯ ИНТЕРПРЕТАЦИЯ\n\n")
	b.WriteString("Сводка материала:\n" + o.InputSummary + "\n\n")
	b.WriteString("Феноменологическое описание:\n" + o.PhenomenologicalSummary + "\n\n")

	b.WriteString("Гипотезы:\n")
	for i, hyp := range o.InterpretativeHypotheses {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, hyp.Confidence, hyp.Formulation)
		if hyp.Reasoning != "" {
			b.WriteString("   Основание: " + hyp.Reasoning + "\n")
		}
	}
	b.WriteString("\nФокус напряжения: " + o.FocusOfTension + "\n")

	if len(o.CompensatoryPatterns) > 0 {
		b.WriteString("\nКомпенсаторные паттерны:\n")
		for _, pat := range o.CompensatoryPatterns {
			b.WriteString("- " + pat + "\n")
		}
	}

	fmt.Fprintf(&b, "\nПрофиль неопределённости: %s", o.UncertaintyProfile.Level)
	if o.UncertaintyProfile.Notes != "" {
		b.WriteString(" (" + o.UncertaintyProfile.Notes + ")")
	}
	b.WriteString("\n")

	if len(o.ClarificationDirections) > 0 {
		b.WriteString("\nНаправления уточнения:\n")
		for _, d := range o.ClarificationDirections {
			b.WriteString("- " + d + "\n")
		}
	}

	if len(o.PolicyFlags.Violations) > 0 {
		b.WriteString("\nЗамечания контроля качества:\n")
		for _, v := range o.PolicyFlags.Violations {
			b.WriteString("- " + v + "\n")
		}
	}
	return b.String()
}

func summarize(o *Output) string {
	if len(o.InterpretativeHypotheses) > 0 {
		s := o.InterpretativeHypotheses[0].Formulation
		if r := []rune(s); len(r) > 120 {
			return string(r[:117]) + "..."
		}
		return s
	}
	return "Интерпретация"
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
