package pro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/internal/domain/artifact"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// botAPIStub fakes the Bot API endpoints the handler touches and records
// outbound traffic per method.
type botAPIStub struct {
	mu        sync.Mutex
	texts     []string
	documents int
}

func (s *botAPIStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body struct {
				Text string `json:"text"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.texts = append(s.texts, body.Text)
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
		case strings.HasSuffix(r.URL.Path, "/sendDocument"):
			s.documents++
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":2}}`)
		default:
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		}
	})
}

func (s *botAPIStub) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *botAPIStub) documentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documents
}

type fakeUsers struct {
	byTelegramID map[identity.TelegramID]*identity.User
}

func (f *fakeUsers) GetOrCreate(context.Context, identity.TelegramID, identity.Role) (*identity.User, error) {
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, id identity.TelegramID) (*identity.User, error) {
	u, ok := f.byTelegramID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(context.Context, uuid.UUID) (*identity.User, error) {
	return nil, identity.ErrUserNotFound
}

type fakeCases struct {
	byID map[uuid.UUID]*identity.Case
}

func (f *fakeCases) Create(context.Context, *identity.Case) error { return nil }

func (f *fakeCases) GetByID(_ context.Context, id uuid.UUID) (*identity.Case, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, identity.ErrCaseNotFound
	}
	return c, nil
}

func (f *fakeCases) ListBySpecialist(context.Context, uuid.UUID, bool) ([]*identity.Case, error) {
	return nil, nil
}

func (f *fakeCases) Archive(context.Context, uuid.UUID) error { return nil }

type fakeArtifacts struct {
	byID map[uuid.UUID]*artifact.Artifact
}

func (f *fakeArtifacts) Save(context.Context, *artifact.Artifact) error { return nil }

func (f *fakeArtifacts) ListByContext(context.Context, uuid.UUID, string) ([]artifact.SummaryView, error) {
	return nil, nil
}

func (f *fakeArtifacts) GetByID(_ context.Context, id uuid.UUID) (*artifact.Artifact, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return a, nil
}

// artifactFixture wires two active specialists, a case owned by the first,
// and one artifact inside that case.
type artifactFixture struct {
	handler  *Handler
	api      *botAPIStub
	owner    *identity.User
	intruder *identity.User
	art      *artifact.Artifact
}

func newArtifactFixture(t *testing.T) *artifactFixture {
	t.Helper()
	api := &botAPIStub{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	cfg := telegram.DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second

	owner := &identity.User{ID: uuid.New(), TelegramID: 100,
		Role: identity.RoleSpecialist, Status: identity.UserActive}
	intruder := &identity.User{ID: uuid.New(), TelegramID: 200,
		Role: identity.RoleSpecialist, Status: identity.UserActive}
	c := &identity.Case{ID: uuid.New(), SpecialistID: owner.ID,
		ClientLabel: "А.Б.", Status: identity.CaseActive}
	art := &artifact.Artifact{ID: uuid.New(), ContextID: c.ID, ServiceID: "screen",
		RunID: uuid.New(), Payload: json.RawMessage(`{"rigidity":0.4}`),
		Summary: "Скрининг", CreatedAt: time.Now().UTC()}

	h := New(Deps{
		Users: &fakeUsers{byTelegramID: map[identity.TelegramID]*identity.User{
			owner.TelegramID:    owner,
			intruder.TelegramID: intruder,
		}},
		Cases:     &fakeCases{byID: map[uuid.UUID]*identity.Case{c.ID: c}},
		Artifacts: &fakeArtifacts{byID: map[uuid.UUID]*artifact.Artifact{art.ID: art}},
		TG:        telegram.NewClient(cfg),
		Log:       logger.Default(),
	})
	return &artifactFixture{handler: h, api: api, owner: owner, intruder: intruder, art: art}
}

func artifactCallback(from *identity.User, artID uuid.UUID) *telegram.Update {
	return &telegram.Update{
		UpdateID: 1,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cq1",
			From:    &telegram.User{ID: int64(from.TelegramID)},
			Message: &telegram.Message{MessageID: 7, Chat: &telegram.Chat{ID: int64(from.TelegramID)}},
			Data:    "art:" + artID.String(),
		},
	}
}

func TestSendArtifact_OwnerReceivesDocument(t *testing.T) {
	f := newArtifactFixture(t)

	err := f.handler.Handle(context.Background(), artifactCallback(f.owner, f.art.ID))

	require.NoError(t, err)
	assert.Equal(t, 1, f.api.documentCount())
	assert.Empty(t, f.api.sentTexts())
}

func TestSendArtifact_NonOwnerIsRefused(t *testing.T) {
	f := newArtifactFixture(t)

	err := f.handler.Handle(context.Background(), artifactCallback(f.intruder, f.art.ID))

	require.NoError(t, err)
	assert.Zero(t, f.api.documentCount(), "foreign case material must not be delivered")
	texts := f.api.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Этот случай принадлежит другому специалисту.", texts[0])
}

func TestSendArtifact_UnknownArtifact(t *testing.T) {
	f := newArtifactFixture(t)

	err := f.handler.Handle(context.Background(), artifactCallback(f.owner, uuid.New()))

	require.NoError(t, err)
	assert.Zero(t, f.api.documentCount())
	texts := f.api.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Материал не найден.", texts[0])
}
