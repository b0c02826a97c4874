// Package screen implements the client-facing screening bot: six fixed
// multi-select screens, up to three adaptive rounds routed over the
// ambiguity zones, up to five constructed rounds, and a two-call report.
package screen

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
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/screening"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/session"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// FSM states. Phase progress lives in the assessment row; the FSM only
// tracks whether a run is in flight.
const (
	stateScreening = "screening"
	stateCompleted = "completed"
)

// payload is the opaque FSM blob: the currently delivered screen and the
// toggled selections.
type payload struct {
	RunID          uuid.UUID         `json:"run_id"`
	Screen         *screening.Screen `json:"screen,omitempty"`
	Selected       []string          `json:"selected,omitempty"`
	MessageID      int64             `json:"message_id,omitempty"`
	Node           string            `json:"node,omitempty"`
	AwaitingReport bool              `json:"awaiting_report,omitempty"`
}

func (p *payload) toggle(optID string) {
	for i, s := range p.Selected {
		if s == optID {
			p.Selected = append(p.Selected[:i], p.Selected[i+1:]...)
			return
		}
	}
	p.Selected = append(p.Selected, optID)
}

// Deps wires the handler.
type Deps struct {
	States      session.StateRepository
	Links       *link.Service
	Artifacts   artifact.Repository
	Assessments screening.AssessmentRepository
	Cases       identity.CaseRepository
	Users       identity.UserRepository
	Oracle      bots.Oracle
	TG          *telegram.Client
	Log         *logger.Logger
}

// Handler is the screening bot.
type Handler struct {
	d Deps
}

// New creates the handler.
func New(d Deps) *Handler {
	return &Handler{d: d}
}

// BotID implements bots.Handler.
func (h *Handler) BotID() string { return config.BotScreen }

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

	if telegram.ExtractCommand(msg) == "start" {
		return h.handleStart(ctx, chatID, msg, log)
	}

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	if !sess.Found() || sess.State == stateCompleted {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Скрининг не активен. Откройте бота по ссылке от вашего специалиста.")
		return err
	}

	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}
	if p.AwaitingReport {
		return h.tryReport(ctx, sess, &p, log)
	}
	_, err = h.d.TG.SendText(ctx, chatID, "Отвечайте кнопками под вопросом выше.")
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Start
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleStart(ctx context.Context, chatID int64, msg *telegram.Message, log *logger.Logger) error {
	raw := strings.TrimSpace(telegram.ExtractCommandArgs(msg))
	if raw == "" {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Скрининг доступен по персональной ссылке от вашего специалиста.")
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

	specialistTG, err := h.resolveSpecialist(ctx, token.ContextID)
	if err != nil {
		return err
	}

	jti := token.Jti
	asmt := screening.NewAssessment(token.RunID, token.ContextID, &jti,
		specialistTG, identity.TelegramID(msg.From.ID), timeutil.Now())
	if err := h.d.Assessments.Create(ctx, asmt); err != nil {
		return err
	}

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	sess.UserID = identity.TelegramID(msg.From.ID)
	sess.Role = token.Role
	sess.State = stateScreening
	sess.ContextID = &token.ContextID

	log.Info("screening run opened", logger.RunID(token.RunID.String()))
	if _, err := h.d.TG.SendText(ctx, chatID,
		"Это короткий скрининг: несколько вопросов с вариантами ответов. "+
			"В каждом вопросе можно выбрать несколько вариантов, затем нажмите «Готово»."); err != nil {
		return err
	}

	p := payload{RunID: token.RunID}
	scr := screening.Phase1Bank()[0]
	if err := h.deliverScreen(ctx, sess, &p, scr); err != nil {
		return err
	}

	asmt.Status = screening.StatusActive
	return h.d.Assessments.Update(ctx, asmt)
}

// resolveSpecialist walks context -> case -> owner to pin the assessment
// and its artifact to the issuing specialist.
func (h *Handler) resolveSpecialist(ctx context.Context, contextID uuid.UUID) (identity.TelegramID, error) {
	c, err := h.d.Cases.GetByID(ctx, contextID)
	if err != nil {
		return 0, err
	}
	u, err := h.d.Users.GetByID(ctx, c.SpecialistID)
	if err != nil {
		return 0, err
	}
	return u.TelegramID, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Screen delivery and multi-select
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) deliverScreen(ctx context.Context, sess *bots.Session, p *payload, scr screening.Screen) error {
	p.Screen = &scr
	p.Selected = nil

	sent, err := h.d.TG.SendWithKeyboard(ctx, sess.ChatID, scr.Text, h.keyboard(&scr, nil))
	if err != nil {
		return err
	}
	p.MessageID = sent.MessageID
	return sess.Save(ctx, p)
}

func (h *Handler) keyboard(scr *screening.Screen, selected []string) [][]telegram.InlineKeyboardButton {
	isSel := func(id string) bool {
		for _, s := range selected {
			if s == id {
				return true
			}
		}
		return false
	}
	kb := telegram.NewKeyboard()
	for _, opt := range scr.Options {
		label := opt.Text
		if isSel(opt.ID) {
			label = "✅ " + label
		}
		kb.Row(telegram.Button(label, "opt:"+opt.ID))
	}
	kb.Row(telegram.Button("Готово ▶", "confirm"))
	return kb.Build().InlineKeyboard
}

func (h *Handler) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
		return nil
	}
	chatID := cq.Message.Chat.ID
	log := h.d.Log.With(logger.BotID(h.BotID()), logger.ChatID(chatID))

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	if !sess.Found() || sess.State != stateScreening {
		return h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false)
	}
	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}
	if p.Screen == nil || cq.Message.MessageID != p.MessageID {
		// Stale button from an already-answered screen.
		return h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false)
	}

	action, value, _ := strings.Cut(cq.Data, ":")
	switch action {
	case "opt":
		p.toggle(value)
		if err := sess.Save(ctx, &p); err != nil {
			return err
		}
		if _, err := h.d.TG.EditMessageText(ctx, chatID, p.MessageID, p.Screen.Text,
			&telegram.InlineKeyboardMarkup{InlineKeyboard: h.keyboard(p.Screen, p.Selected)}); err != nil {
			log.Warn("keyboard edit failed", logger.Err(err))
		}
		return h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false)
	case "confirm":
		if len(p.Selected) == 0 {
			return h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "Выберите хотя бы один вариант", true)
		}
		if err := h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false); err != nil {
			log.Warn("answer callback failed", logger.Err(err))
		}
		return h.handleConfirm(ctx, sess, &p, log)
	default:
		return h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Phase advancement
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleConfirm(ctx context.Context, sess *bots.Session, p *payload, log *logger.Logger) error {
	asmt, err := h.d.Assessments.GetByRunID(ctx, p.RunID)
	if err != nil {
		return err
	}
	orch := NewOrchestrator(asmt, h.d.Oracle, log)

	scr := *p.Screen
	delta := orch.Accumulate(scr, p.Selected)

	switch asmt.Phase {
	case screening.PhaseFixed:
		asmt.Phase1Index++
		if asmt.Phase1Index < screening.Phase1ScreenCount {
			if err := h.d.Assessments.Update(ctx, asmt); err != nil {
				return err
			}
			return h.deliverScreen(ctx, sess, p, screening.Phase1Bank()[asmt.Phase1Index])
		}
		if asmt.Engine.Confidence >= screening.JumpThreshold {
			return h.completeRun(ctx, sess, p, asmt, log)
		}
		asmt.Phase = screening.PhaseAdaptive
		if err := h.d.Assessments.Update(ctx, asmt); err != nil {
			return err
		}
		return h.deliverAdaptive(ctx, sess, p, orch)

	case screening.PhaseAdaptive:
		asmt.AdaptiveRounds++
		asmt.MarkVisited(p.Node)
		if !orch.ShouldStopAdaptive(ctx, delta) {
			if err := h.d.Assessments.Update(ctx, asmt); err != nil {
				return err
			}
			return h.deliverAdaptive(ctx, sess, p, orch)
		}
		if asmt.Engine.Confidence >= screening.JumpThreshold {
			return h.completeRun(ctx, sess, p, asmt, log)
		}
		asmt.Phase = screening.PhaseConstructed
		if err := h.d.Assessments.Update(ctx, asmt); err != nil {
			return err
		}
		return h.deliverConstructed(ctx, sess, p, orch)

	case screening.PhaseConstructed:
		asmt.ConstructedRounds++
		asmt.MarkVisited(p.Node)
		if asmt.Engine.Confidence >= screening.JumpThreshold ||
			asmt.ConstructedRounds >= screening.MaxConstructedRounds {
			return h.completeRun(ctx, sess, p, asmt, log)
		}
		if err := h.d.Assessments.Update(ctx, asmt); err != nil {
			return err
		}
		return h.deliverConstructed(ctx, sess, p, orch)

	default:
		return fmt.Errorf("screening: assessment %s in unknown phase %d", asmt.ID, asmt.Phase)
	}
}

func (h *Handler) deliverAdaptive(ctx context.Context, sess *bots.Session, p *payload, orch *Orchestrator) error {
	node := orch.RouteNode(ctx)
	tmpl, _ := screening.Phase2Template(node)
	p.Node = node
	return h.deliverScreen(ctx, sess, p, tmpl)
}

func (h *Handler) deliverConstructed(ctx context.Context, sess *bots.Session, p *payload, orch *Orchestrator) error {
	node := orch.TargetNode()
	scr := orch.ConstructQuestion(ctx, node)
	p.Node = node
	return h.deliverScreen(ctx, sess, p, scr)
}

// ──────────────────────────────────────────────────────────────────────────────
// Report
// ──────────────────────────────────────────────────────────────────────────────

// completeRun persists the engine state, then attempts report generation.
// An oracle outage leaves the run resumable: the client can nudge the bot
// with any message to retry.
func (h *Handler) completeRun(ctx context.Context, sess *bots.Session, p *payload, asmt *screening.Assessment, log *logger.Logger) error {
	if err := h.d.Assessments.Update(ctx, asmt); err != nil {
		return err
	}
	p.Screen = nil
	p.Selected = nil
	p.AwaitingReport = true
	if err := sess.Save(ctx, p); err != nil {
		return err
	}
	if _, err := h.d.TG.SendText(ctx, sess.ChatID, "Спасибо, все ответы собраны. Готовлю результаты…"); err != nil {
		return err
	}
	return h.tryReport(ctx, sess, p, log)
}

func (h *Handler) tryReport(ctx context.Context, sess *bots.Session, p *payload, log *logger.Logger) error {
	asmt, err := h.d.Assessments.GetByRunID(ctx, p.RunID)
	if err != nil {
		return err
	}
	orch := NewOrchestrator(asmt, h.d.Oracle, log)

	report, err := orch.GenerateReport(ctx)
	if err != nil {
		log.Error("report generation failed", logger.Err(err))
		_, sendErr := h.d.TG.SendText(ctx, sess.ChatID,
			bots.ErrTryLater+" Напишите любое сообщение, чтобы я попробовал ещё раз.")
		return sendErr
	}

	raw, err := MarshalReport(report)
	if err != nil {
		return err
	}
	text := RenderReportText(report)

	now := timeutil.Now()
	asmt.ReportJSON = raw
	asmt.ReportText = text
	asmt.Status = screening.StatusCompleted
	asmt.CompletedAt = &now
	if err := h.d.Assessments.Update(ctx, asmt); err != nil {
		return err
	}

	p.AwaitingReport = false
	sess.State = stateCompleted
	if err := sess.Save(ctx, p); err != nil {
		return err
	}

	if _, err := h.d.TG.SendDocument(ctx, sess.ChatID, "screening_report.txt", []byte(text),
		fmt.Sprintf("Надёжность профиля: %.2f", report.Confidence)); err != nil {
		return err
	}

	bots.SaveArtifact(ctx, h.d.Artifacts, log, &artifact.Artifact{
		ContextID:            asmt.ContextID,
		ServiceID:            h.BotID(),
		RunID:                asmt.RunID,
		SpecialistTelegramID: int64(asmt.SpecialistTelegramID),
		Payload:              raw,
		Summary: fmt.Sprintf("Скрининг: уверенность %.2f, ригидность %.2f, узлы %s",
			report.Confidence, report.Rigidity, strings.Join(report.DominantCells, ", ")),
	})

	log.Info("screening run completed",
		logger.RunID(asmt.RunID.String()),
		logger.Float64("confidence", report.Confidence),
		logger.Float64("rigidity", report.Rigidity),
		logger.Int("responses", len(asmt.Engine.ResponseHistory)))
	return nil
}

// verificationReply maps a verification error to its user-visible reason.
func verificationReply(err error) string {
	switch {
	case errors.Is(err, link.ErrAlreadyUsed):
		return "Эта ссылка уже использована. Попросите специалиста прислать новую."
	case errors.Is(err, link.ErrExpired):
		return "Срок действия ссылки истёк. Попросите специалиста прислать новую."
	case errors.Is(err, link.ErrWrongService):
		return "Эта ссылка выпущена для другого сервиса."
	case errors.Is(err, link.ErrWrongUser):
		return "Эта ссылка выпущена для другого пользователя."
	case errors.Is(err, link.ErrNotFound):
		return "Ссылка не найдена. Проверьте, что она скопирована целиком."
	default:
		return "Ссылка не распознана. Проверьте формат."
	}
}
