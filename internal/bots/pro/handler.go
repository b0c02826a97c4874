// Package pro implements the front-office bot for specialists: invite-based
// registration, case management, tool deep-link issuing, and artifact
// browsing.
package pro

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/config"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/artifact"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/link"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/session"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
	"github.com/psyhub-dev/psyhub-gateway/pkg/timeutil"
)

// FSM states.
const (
	stateMenu          = "menu"
	stateNewCaseLabel  = "new_case_label"
	stateClientIDInput = "client_id_input"
)

// Invite defaults.
const (
	defaultInviteUses = 1
	maxInviteUses     = 50
	inviteTTL         = 7 * 24 * time.Hour
)

// toolTitles are the user-facing names of the tool services.
var toolTitles = map[string]string{
	config.BotScreen:           "Скрининг (для себя)",
	config.BotInterpretator:    "Интерпретатор",
	config.BotConceptualizator: "Концептуализатор",
	config.BotSimulator:        "Симулятор",
}

// payload is the opaque FSM blob.
type payload struct {
	PendingCaseID *uuid.UUID `json:"pending_case_id,omitempty"`
}

// Deps wires the handler. BotUsernames maps bot_id to its Telegram username
// (resolved at startup via getMe) for t.me deep links.
type Deps struct {
	States       session.StateRepository
	Users        identity.UserRepository
	Cases        identity.CaseRepository
	Invites      identity.InviteRepository
	Links        *link.Service
	Artifacts    artifact.Repository
	TG           *telegram.Client
	Log          *logger.Logger
	BotUsernames map[string]string
}

// Handler is the front-office bot.
type Handler struct {
	d Deps
}

// New creates the handler.
func New(d Deps) *Handler {
	return &Handler{d: d}
}

// BotID implements bots.Handler.
func (h *Handler) BotID() string { return config.BotPro }

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
	from := identity.TelegramID(msg.From.ID)
	log := h.d.Log.With(logger.BotID(h.BotID()), logger.ChatID(chatID))

	switch telegram.ExtractCommand(msg) {
	case "start":
		return h.handleStart(ctx, chatID, msg, log)
	case "menu":
		return h.requireSpecialist(ctx, chatID, from, func(*identity.User) error {
			return h.sendMenu(ctx, chatID)
		})
	case "invite":
		return h.requireSpecialist(ctx, chatID, from, func(u *identity.User) error {
			return h.handleInvite(ctx, chatID, u, telegram.ExtractCommandArgs(msg), log)
		})
	}

	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	if !sess.Found() {
		_, err := h.d.TG.SendText(ctx, chatID, "Начните с команды /start <код приглашения>.")
		return err
	}
	var p payload
	if err := sess.DecodePayload(&p); err != nil {
		return err
	}

	text := strings.TrimSpace(msg.Text)
	switch sess.State {
	case stateNewCaseLabel:
		return h.handleNewCaseLabel(ctx, sess, from, text)
	case stateClientIDInput:
		return h.handleClientID(ctx, sess, &p, text)
	default:
		return h.sendMenu(ctx, chatID)
	}
}

// requireSpecialist loads the registered specialist or prompts for an invite.
func (h *Handler) requireSpecialist(ctx context.Context, chatID int64, from identity.TelegramID, fn func(*identity.User) error) error {
	u, err := h.d.Users.GetByTelegramID(ctx, from)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			_, sendErr := h.d.TG.SendText(ctx, chatID,
				"Доступ по приглашению. Отправьте /start <код приглашения>.")
			return sendErr
		}
		return err
	}
	if u.Role != identity.RoleSpecialist || u.Status != identity.UserActive {
		_, sendErr := h.d.TG.SendText(ctx, chatID, "Кабинет доступен только активным специалистам.")
		return sendErr
	}
	return fn(u)
}

// ──────────────────────────────────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleStart(ctx context.Context, chatID int64, msg *telegram.Message, log *logger.Logger) error {
	from := identity.TelegramID(msg.From.ID)

	if u, err := h.d.Users.GetByTelegramID(ctx, from); err == nil &&
		u.Role == identity.RoleSpecialist && u.Status == identity.UserActive {
		return h.openMenu(ctx, chatID, "С возвращением, "+msg.From.FirstName+".")
	}

	token := strings.TrimSpace(telegram.ExtractCommandArgs(msg))
	if token == "" {
		_, err := h.d.TG.SendText(ctx, chatID,
			"Это кабинет специалиста. Для регистрации нужен код приглашения: /start <код>.")
		return err
	}

	inv, err := h.d.Invites.Consume(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInviteNotFound):
			_, sendErr := h.d.TG.SendText(ctx, chatID, "Код приглашения не найден. Проверьте его и попробуйте снова.")
			return sendErr
		case errors.Is(err, identity.ErrInviteExhausted):
			_, sendErr := h.d.TG.SendText(ctx, chatID, "Код приглашения уже израсходован или истёк.")
			return sendErr
		default:
			return err
		}
	}

	if _, err := h.d.Users.GetOrCreate(ctx, from, identity.RoleSpecialist); err != nil {
		return err
	}
	log.Info("specialist registered",
		logger.TelegramID(int64(from)), logger.String("invite", inv.Token))
	return h.openMenu(ctx, chatID, "Регистрация завершена. Добро пожаловать!")
}

func (h *Handler) openMenu(ctx context.Context, chatID int64, greeting string) error {
	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	sess.State = stateMenu
	if err := sess.Save(ctx, payload{}); err != nil {
		return err
	}
	if _, err := h.d.TG.SendText(ctx, chatID, greeting); err != nil {
		return err
	}
	return h.sendMenu(ctx, chatID)
}

func (h *Handler) sendMenu(ctx context.Context, chatID int64) error {
	kb := telegram.NewKeyboard().
		Row(telegram.Button("📁 Мои случаи", "cases:active")).
		Row(telegram.Button("🗂 Архив", "cases:all")).
		Row(telegram.Button("➕ Новый случай", "case:new")).
		Build()
	_, err := h.d.TG.SendWithKeyboard(ctx, chatID, "Кабинет специалиста:", kb.InlineKeyboard)
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Callbacks
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
		return nil
	}
	chatID := cq.Message.Chat.ID
	from := identity.TelegramID(cq.From.ID)
	log := h.d.Log.With(logger.BotID(h.BotID()), logger.ChatID(chatID))

	if err := h.d.TG.AnswerCallbackQuery(ctx, cq.ID, "", false); err != nil {
		log.Warn("answer callback failed", logger.Err(err))
	}

	return h.requireSpecialist(ctx, chatID, from, func(u *identity.User) error {
		action, value, _ := strings.Cut(cq.Data, ":")
		switch action {
		case "cases":
			return h.showCases(ctx, chatID, u, value == "all")
		case "case":
			if value == "new" {
				return h.askCaseLabel(ctx, chatID)
			}
			return h.withCase(ctx, chatID, u, value, func(c *identity.Case) error {
				return h.showCase(ctx, chatID, c)
			})
		case "link":
			service, caseID, _ := strings.Cut(value, ":")
			return h.withCase(ctx, chatID, u, caseID, func(c *identity.Case) error {
				return h.issueSpecialistLink(ctx, chatID, u, c, service, log)
			})
		case "clientlink":
			return h.withCase(ctx, chatID, u, value, func(c *identity.Case) error {
				return h.askClientID(ctx, chatID, c)
			})
		case "arts":
			return h.withCase(ctx, chatID, u, value, func(c *identity.Case) error {
				return h.showArtifacts(ctx, chatID, c)
			})
		case "art":
			return h.sendArtifact(ctx, chatID, u, value)
		case "archive":
			return h.withCase(ctx, chatID, u, value, func(c *identity.Case) error {
				if err := h.d.Cases.Archive(ctx, c.ID); err != nil {
					return err
				}
				_, err := h.d.TG.SendText(ctx, chatID, "Случай «"+c.ClientLabel+"» перенесён в архив.")
				return err
			})
		case "menu":
			return h.sendMenu(ctx, chatID)
		default:
			return nil
		}
	})
}

// withCase loads a case by id and verifies the caller owns it.
func (h *Handler) withCase(ctx context.Context, chatID int64, u *identity.User, rawID string, fn func(*identity.Case) error) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	c, err := h.d.Cases.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrCaseNotFound) {
			_, sendErr := h.d.TG.SendText(ctx, chatID, "Случай не найден.")
			return sendErr
		}
		return err
	}
	if c.SpecialistID != u.ID {
		_, sendErr := h.d.TG.SendText(ctx, chatID, "Этот случай принадлежит другому специалисту.")
		return sendErr
	}
	return fn(c)
}

// ──────────────────────────────────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) showCases(ctx context.Context, chatID int64, u *identity.User, includeArchived bool) error {
	cases, err := h.d.Cases.ListBySpecialist(ctx, u.ID, includeArchived)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		kb := telegram.NewKeyboard().Row(telegram.Button("➕ Новый случай", "case:new")).Build()
		_, err := h.d.TG.SendWithKeyboard(ctx, chatID, "Случаев пока нет.", kb.InlineKeyboard)
		return err
	}

	kb := telegram.NewKeyboard()
	for _, c := range cases {
		label := c.ClientLabel
		if c.Status == identity.CaseArchived {
			label = "🗄 " + label
		}
		kb.Row(telegram.Button(label, "case:"+c.ID.String()))
	}
	kb.Row(telegram.Button("◀ Меню", "menu:"))
	_, err = h.d.TG.SendWithKeyboard(ctx, chatID, "Ваши случаи:", kb.Build().InlineKeyboard)
	return err
}

func (h *Handler) askCaseLabel(ctx context.Context, chatID int64) error {
	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	sess.State = stateNewCaseLabel
	if err := sess.Save(ctx, payload{}); err != nil {
		return err
	}
	_, err = h.d.TG.SendText(ctx, chatID,
		"Введите метку случая (например, инициалы клиента). Без персональных данных.")
	return err
}

func (h *Handler) handleNewCaseLabel(ctx context.Context, sess *bots.Session, from identity.TelegramID, label string) error {
	u, err := h.d.Users.GetByTelegramID(ctx, from)
	if err != nil {
		return err
	}
	c, err := identity.NewCase(u.ID, label, timeutil.Now())
	if err != nil {
		if errors.Is(err, identity.ErrEmptyClientLabel) {
			_, sendErr := h.d.TG.SendText(ctx, sess.ChatID, "Метка не может быть пустой. Введите ещё раз.")
			return sendErr
		}
		return err
	}
	if err := h.d.Cases.Create(ctx, c); err != nil {
		return err
	}
	sess.State = stateMenu
	if err := sess.Save(ctx, payload{}); err != nil {
		return err
	}
	return h.showCase(ctx, sess.ChatID, c)
}

func (h *Handler) showCase(ctx context.Context, chatID int64, c *identity.Case) error {
	kb := telegram.NewKeyboard()
	for _, service := range config.ToolBotIDs {
		kb.Row(telegram.Button("🔗 "+toolTitles[service], "link:"+service+":"+c.ID.String()))
	}
	kb.Row(telegram.Button("🔗 Скрининг для клиента", "clientlink:"+c.ID.String()))
	kb.Row(telegram.Button("📄 Материалы", "arts:"+c.ID.String()))
	if c.Status == identity.CaseActive {
		kb.Row(telegram.Button("🗄 В архив", "archive:"+c.ID.String()))
	}
	kb.Row(telegram.Button("◀ К списку", "cases:active"))

	status := "активен"
	if c.Status == identity.CaseArchived {
		status = "в архиве"
	}
	text := fmt.Sprintf("Случай «%s» (%s)\nСоздан: %s", c.ClientLabel, status, c.CreatedAt.Format("02.01.2006"))
	_, err := h.d.TG.SendWithKeyboard(ctx, chatID, text, kb.Build().InlineKeyboard)
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Link issuing
// ──────────────────────────────────────────────────────────────────────────────

// issueSpecialistLink issues a specialist-role token bound to the caller and
// renders the t.me deep link.
func (h *Handler) issueSpecialistLink(ctx context.Context, chatID int64, u *identity.User, c *identity.Case, service string, log *logger.Logger) error {
	if !config.IsToolBot(service) {
		return nil
	}
	token, err := h.d.Links.Issue(ctx, service, c.ID, identity.RoleSpecialist, u.TelegramID)
	if err != nil {
		return err
	}
	log.Info("link issued",
		logger.ServiceID(service), logger.ContextID(c.ID.String()), logger.Jti(token.Jti.String()))
	_, err = h.d.TG.SendText(ctx, chatID,
		"Одноразовая ссылка (действует 24 часа, только для вас):\n"+h.deepLink(service, token))
	return err
}

// askClientID starts the client screening link flow. A token is bound to
// one Telegram user, so the client's numeric id is required up front.
func (h *Handler) askClientID(ctx context.Context, chatID int64, c *identity.Case) error {
	sess, err := bots.LoadSession(ctx, h.d.States, h.BotID(), chatID)
	if err != nil {
		return err
	}
	sess.State = stateClientIDInput
	id := c.ID
	if err := sess.Save(ctx, payload{PendingCaseID: &id}); err != nil {
		return err
	}
	_, err = h.d.TG.SendText(ctx, chatID,
		"Введите Telegram ID клиента (число). Клиент может узнать его, например, у бота @userinfobot.")
	return err
}

func (h *Handler) handleClientID(ctx context.Context, sess *bots.Session, p *payload, text string) error {
	if p.PendingCaseID == nil {
		sess.State = stateMenu
		if err := sess.Save(ctx, payload{}); err != nil {
			return err
		}
		return h.sendMenu(ctx, sess.ChatID)
	}
	clientID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || !identity.TelegramID(clientID).IsValid() {
		_, sendErr := h.d.TG.SendText(ctx, sess.ChatID, "Нужно число, например 123456789. Попробуйте ещё раз.")
		return sendErr
	}

	token, err := h.d.Links.Issue(ctx, config.BotScreen, *p.PendingCaseID,
		identity.RoleClient, identity.TelegramID(clientID))
	if err != nil {
		return err
	}

	sess.State = stateMenu
	if err := sess.Save(ctx, payload{}); err != nil {
		return err
	}
	_, err = h.d.TG.SendText(ctx, sess.ChatID,
		"Перешлите клиенту ссылку на скрининг (действует 24 часа, только для него):\n"+
			h.deepLink(config.BotScreen, token))
	return err
}

func (h *Handler) deepLink(service string, token *link.Token) string {
	username := h.d.BotUsernames[service]
	if username == "" {
		// Username resolution failed at startup; the raw start payload still
		// works via the bot's /start command.
		return "Код для команды /start в боте «" + toolTitles[service] + "»: " + token.StartParam()
	}
	return "https://t.me/" + username + "?start=" + token.StartParam()
}

// ──────────────────────────────────────────────────────────────────────────────
// Artifacts
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) showArtifacts(ctx context.Context, chatID int64, c *identity.Case) error {
	views, err := h.d.Artifacts.ListByContext(ctx, c.ID, "")
	if err != nil {
		return err
	}
	if len(views) == 0 {
		_, err := h.d.TG.SendText(ctx, chatID, "По случаю «"+c.ClientLabel+"» материалов пока нет.")
		return err
	}
	kb := telegram.NewKeyboard()
	for _, v := range views {
		label := fmt.Sprintf("%s · %s", v.CreatedAt.Format("02.01"), v.Summary)
		if len([]rune(label)) > 60 {
			label = string([]rune(label)[:57]) + "…"
		}
		kb.Row(telegram.Button(label, "art:"+v.ID.String()))
	}
	kb.Row(telegram.Button("◀ К случаю", "case:"+c.ID.String()))
	_, err = h.d.TG.SendWithKeyboard(ctx, chatID,
		"Материалы по случаю «"+c.ClientLabel+"»:", kb.Build().InlineKeyboard)
	return err
}

func (h *Handler) sendArtifact(ctx context.Context, chatID int64, u *identity.User, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	a, err := h.d.Artifacts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			_, sendErr := h.d.TG.SendText(ctx, chatID, "Материал не найден.")
			return sendErr
		}
		return err
	}
	// Ownership check runs through the case, not the artifact row. Delivery
	// happens inside the closure: withCase only invokes it for the owner.
	return h.withCase(ctx, chatID, u, a.ContextID.String(), func(*identity.Case) error {
		name := fmt.Sprintf("%s_%s.json", a.ServiceID, a.CreatedAt.Format("2006-01-02"))
		_, err := h.d.TG.SendDocument(ctx, chatID, name, []byte(a.Payload), a.Summary)
		return err
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Invites
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) handleInvite(ctx context.Context, chatID int64, u *identity.User, args string, log *logger.Logger) error {
	uses := defaultInviteUses
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > maxInviteUses {
			_, sendErr := h.d.TG.SendText(ctx, chatID,
				fmt.Sprintf("Использование: /invite [число активаций от 1 до %d].", maxInviteUses))
			return sendErr
		}
		uses = n
	}

	inv, err := identity.NewInvite(u.ID, uses, inviteTTL, timeutil.Now())
	if err != nil {
		return err
	}
	if err := h.d.Invites.Create(ctx, inv); err != nil {
		return err
	}
	log.Info("invite created", logger.TelegramID(int64(u.TelegramID)), logger.Int("max_uses", uses))

	reply := fmt.Sprintf("Код приглашения (активаций: %d, действует 7 дней):\n%s", uses, inv.Token)
	if username := h.d.BotUsernames[config.BotPro]; username != "" {
		reply += "\n\nСсылка для нового специалиста:\nhttps://t.me/" + username + "?start=" + inv.Token
	}
	_, err = h.d.TG.SendText(ctx, chatID, reply)
	return err
}
