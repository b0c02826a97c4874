package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/psyhub-dev/psyhub-gateway/internal/bots"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// secretHeader is echoed back by Telegram on every webhook delivery.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// handleWebhook dispatches one Telegram update. The contract with Telegram
// is strict: every outcome except a secret mismatch answers 200, otherwise
// Telegram retries the update indefinitely. Drops (malformed bodies,
// duplicates, rate-limited chats, handler failures) are logged, not
// surfaced.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("bot_id")
	handler, ok := s.deps.Handlers[botID]
	if !ok {
		http.NotFound(w, r)
		return
	}

	secret := s.deps.Secrets[botID]
	given := r.Header.Get(secretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1 {
		s.logger.Warn("webhook secret mismatch", logger.BotID(botID))
		writeError(w, http.StatusForbidden, "forbidden", "bad webhook secret")
		return
	}

	log := s.logger.With(logger.BotID(botID), logger.String("request_id", getRequestID(r.Context())))

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
	if err != nil {
		log.Warn("webhook body read failed", logger.Err(err))
		writeOK(w)
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		log.Warn("malformed update dropped", logger.Err(err))
		writeOK(w)
		return
	}

	chatID := update.ChatID()
	if (update.Message == nil && update.CallbackQuery == nil) || chatID == 0 {
		writeOK(w)
		return
	}

	ctx := r.Context()
	log = log.With(logger.ChatID(chatID), logger.UpdateID(update.UpdateID))

	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(ctx, botID, chatID) {
		log.Warn("update dropped by rate limit")
		writeOK(w)
		return
	}

	fresh, err := s.deps.Dedup.Insert(ctx, botID, update.UpdateID, chatID)
	if err != nil {
		log.Error("dedup insert failed, dropping update", logger.Err(err))
		writeOK(w)
		return
	}
	if !fresh {
		log.Debug("duplicate update dropped")
		writeOK(w)
		return
	}

	s.invoke(ctx, handler, &update, log)
	writeOK(w)
}

// invoke runs the handler with panic isolation. A panicking or failing
// handler is a logged incident, never a non-200 response.
func (s *Server) invoke(ctx context.Context, handler bots.Handler, update *telegram.Update, log *logger.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("handler panic",
				logger.Any("panic", rec),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()
	if err := handler.Handle(ctx, update); err != nil {
		log.Error("handler failed", logger.Err(err))
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
