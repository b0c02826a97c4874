package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/internal/bots"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
)

type stubHandler struct {
	botID   string
	calls   int
	lastUpd *telegram.Update
	err     error
	panics  bool
}

func (h *stubHandler) BotID() string { return h.botID }

func (h *stubHandler) Handle(_ context.Context, u *telegram.Update) error {
	h.calls++
	h.lastUpd = u
	if h.panics {
		panic("handler exploded")
	}
	return h.err
}

type stubDedup struct {
	fresh bool
	err   error
	calls int
}

func (d *stubDedup) Insert(context.Context, string, int64, int64) (bool, error) {
	d.calls++
	return d.fresh, d.err
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int64) bool { return false }

func newTestServer(h *stubHandler, dedup *stubDedup) *Server {
	return NewServer(DefaultConfig(), Dependencies{
		Handlers: map[string]bots.Handler{"screen": h},
		Secrets:  map[string]string{"screen": "s3cret"},
		Dedup:    dedup,
	})
}

func webhookBody(t *testing.T, updateID int64, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"update_id": updateID,
		"message": map[string]interface{}{
			"message_id": 1,
			"text":       text,
			"from":       map[string]interface{}{"id": 42},
			"chat":       map[string]interface{}{"id": 42, "type": "private"},
		},
	})
	require.NoError(t, err)
	return body
}

func postWebhook(srv *Server, botID, secret string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+botID, bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_Dispatches(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	srv := newTestServer(h, &stubDedup{fresh: true})

	rec := postWebhook(srv, "screen", "s3cret", webhookBody(t, 100, "привет"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, h.calls)
	assert.Equal(t, int64(100), h.lastUpd.UpdateID)
	assert.Equal(t, "привет", h.lastUpd.Message.Text)
}

func TestWebhook_SecretMismatchIs403(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	dedup := &stubDedup{fresh: true}
	srv := newTestServer(h, dedup)

	for _, secret := range []string{"", "wrong"} {
		rec := postWebhook(srv, "screen", secret, webhookBody(t, 100, "hi"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}
	assert.Zero(t, h.calls)
	assert.Zero(t, dedup.calls)
}

func TestWebhook_UnknownBotIs404(t *testing.T) {
	srv := newTestServer(&stubHandler{botID: "screen"}, &stubDedup{fresh: true})

	rec := postWebhook(srv, "nope", "s3cret", webhookBody(t, 100, "hi"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_DuplicateDroppedWith200(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	srv := newTestServer(h, &stubDedup{fresh: false})

	rec := postWebhook(srv, "screen", "s3cret", webhookBody(t, 100, "hi"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.calls)
}

func TestWebhook_DedupErrorDropsWith200(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	srv := newTestServer(h, &stubDedup{err: errors.New("db down")})

	rec := postWebhook(srv, "screen", "s3cret", webhookBody(t, 100, "hi"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.calls)
}

func TestWebhook_MalformedBodyIs200(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	srv := newTestServer(h, &stubDedup{fresh: true})

	rec := postWebhook(srv, "screen", "s3cret", []byte("{not json"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.calls)
}

func TestWebhook_UpdateWithoutChatIs200(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	srv := newTestServer(h, &stubDedup{fresh: true})

	rec := postWebhook(srv, "screen", "s3cret", []byte(`{"update_id": 5}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.calls)
}

func TestWebhook_RateLimitedDroppedWith200(t *testing.T) {
	h := &stubHandler{botID: "screen"}
	dedup := &stubDedup{fresh: true}
	srv := NewServer(DefaultConfig(), Dependencies{
		Handlers: map[string]bots.Handler{"screen": h},
		Secrets:  map[string]string{"screen": "s3cret"},
		Dedup:    dedup,
		Limiter:  denyLimiter{},
	})

	rec := postWebhook(srv, "screen", "s3cret", webhookBody(t, 100, "hi"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.calls)
	assert.Zero(t, dedup.calls)
}

func TestWebhook_HandlerPanicStill200(t *testing.T) {
	h := &stubHandler{botID: "screen", panics: true}
	srv := newTestServer(h, &stubDedup{fresh: true})

	rec := postWebhook(srv, "screen", "s3cret", webhookBody(t, 100, "hi"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.calls)
}

func TestWebhook_HandlerErrorStill200(t *testing.T) {
	h := &stubHandler{botID: "screen", err: errors.New("oracle down")}
	srv := newTestServer(h, &stubDedup{fresh: true})

	rec := postWebhook(srv, "screen", "s3cret", webhookBody(t, 100, "hi"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.calls)
}
