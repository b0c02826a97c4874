package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/psyhub-dev/psyhub-gateway/config"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/artifact"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/identity"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/link"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

type issueLinkRequest struct {
	ServiceID string `json:"service_id"`
	ContextID string `json:"context_id"`
	Role      string `json:"role"`
	SubjectID int64  `json:"subject_id"`
}

type issueLinkResponse struct {
	Jti        string `json:"jti"`
	RunID      string `json:"run_id"`
	StartParam string `json:"start_param"`
}

// handleIssueLink issues a one-shot deep-link token for a tool service.
func (s *Server) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	var req issueLinkRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if !config.IsToolBot(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "bad_service", "service_id must be a tool service")
		return
	}
	role := identity.Role(req.Role)
	if !role.IsValid() {
		writeError(w, http.StatusBadRequest, "bad_role", "role must be specialist or client")
		return
	}
	if role == identity.RoleClient && req.ServiceID != link.ServiceScreen {
		writeError(w, http.StatusBadRequest, "bad_role", "client links are limited to the screen service")
		return
	}
	contextID, err := uuid.Parse(req.ContextID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_context", "context_id must be a UUID")
		return
	}
	if !identity.TelegramID(req.SubjectID).IsValid() {
		writeError(w, http.StatusBadRequest, "bad_subject", "subject_id must be a positive Telegram id")
		return
	}

	token, err := s.deps.Links.Issue(r.Context(), req.ServiceID, contextID, role, identity.TelegramID(req.SubjectID))
	if err != nil {
		s.logger.Error("link issue failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not issue link")
		return
	}

	writeJSON(w, http.StatusOK, issueLinkResponse{
		Jti:        token.Jti.String(),
		RunID:      token.RunID.String(),
		StartParam: token.StartParam(),
	})
}

type verifyLinkRequest struct {
	RawToken  string `json:"raw_token"`
	ServiceID string `json:"service_id"`
	SubjectID int64  `json:"subject_id"`
}

type verifyLinkResponse struct {
	ContextID string `json:"context_id"`
	RunID     string `json:"run_id"`
	Role      string `json:"role"`
	ServiceID string `json:"service_id"`
}

// handleVerifyLink consumes a token on behalf of an external host. The
// one-shot semantics are identical to a bot's /start verification.
func (s *Server) handleVerifyLink(w http.ResponseWriter, r *http.Request) {
	var req verifyLinkRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	token, err := s.deps.Links.Verify(r.Context(), req.RawToken, req.ServiceID, identity.TelegramID(req.SubjectID))
	if err != nil {
		if link.IsVerificationError(err) {
			writeError(w, http.StatusBadRequest, verificationCode(err), err.Error())
			return
		}
		s.logger.Error("link verify failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not verify link")
		return
	}

	writeJSON(w, http.StatusOK, verifyLinkResponse{
		ContextID: token.ContextID.String(),
		RunID:     token.RunID.String(),
		Role:      string(token.Role),
		ServiceID: token.ServiceID,
	})
}

// verificationCode maps a verification error to its wire code.
func verificationCode(err error) string {
	switch {
	case errors.Is(err, link.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, link.ErrNotFound):
		return "not_found"
	case errors.Is(err, link.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, link.ErrExpired):
		return "expired"
	case errors.Is(err, link.ErrWrongService):
		return "wrong_service"
	case errors.Is(err, link.ErrWrongUser):
		return "wrong_user"
	case errors.Is(err, link.ErrClientService):
		return "client_service"
	default:
		return "verification_failed"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ARTIFACT ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

type artifactSummary struct {
	ID        string `json:"id"`
	ContextID string `json:"context_id"`
	ServiceID string `json:"service_id"`
	RunID     string `json:"run_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

// handleListArtifacts returns the newest artifacts of one context, in
// summary form.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	contextID, err := uuid.Parse(r.URL.Query().Get("context_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_context", "context_id must be a UUID")
		return
	}
	serviceID := r.URL.Query().Get("service_id")

	views, err := s.deps.Artifacts.ListByContext(r.Context(), contextID, serviceID)
	if err != nil {
		s.logger.Error("artifact list failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list artifacts")
		return
	}

	out := make([]artifactSummary, 0, len(views))
	for _, v := range views {
		out = append(out, artifactSummary{
			ID:        v.ID.String(),
			ContextID: v.ContextID.String(),
			ServiceID: v.ServiceID,
			RunID:     v.RunID.String(),
			Summary:   v.Summary,
			CreatedAt: v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artifacts": out})
}

// handleGetArtifact returns one artifact with its full payload.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_id", "artifact id must be a UUID")
		return
	}

	a, err := s.deps.Artifacts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "artifact not found")
			return
		}
		s.logger.Error("artifact get failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load artifact")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                     a.ID.String(),
		"context_id":             a.ContextID.String(),
		"service_id":             a.ServiceID,
		"run_id":                 a.RunID.String(),
		"specialist_telegram_id": a.SpecialistTelegramID,
		"summary":                a.Summary,
		"payload":                json.RawMessage(a.Payload),
		"created_at":             a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// decodeBody reads and unmarshals a JSON request body, writing the 400
// itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "could not read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body must be valid JSON")
		return false
	}
	return true
}
