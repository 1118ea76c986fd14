/*
handlers.go - HTTP handlers for the quest ledger

PURPOSE:
  Exposes the sync gateway via REST. Handlers only parse requests, call
  the gateway, and serialize responses - every rule (roles, transitions,
  timeouts) lives below this layer.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                        authenticate
    POST   /api/auth/register                     create parent account
    POST   /api/auth/logout                       revoke session

  Parent:
    GET    /api/admin/children                    all dashboards
    POST   /api/admin/children                    provision child ledger
    POST   /api/admin/children/{childID}/quests   assign quest
    POST   /api/admin/verify                      approve/reject submission
    DELETE /api/admin/quests/{questID}            delete quest
    POST   /api/admin/seed                        load the demo family

  Child/shared:
    GET    /api/child/{childID}/dashboard         one child's snapshot
    PATCH  /api/child/quests/{questID}/toggle     submit / un-submit

ERROR HANDLING:
  The ledger error taxonomy maps onto HTTP statuses:
    400 validation      401 unauthorized   403 forbidden
    404 not found       409 conflict (invalid transition, already processed)
    504 timeout         500 everything else
  Failures are never collapsed to a bare boolean.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: routing and session middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/quest-ledger/gateway"
	"github.com/warp/quest-ledger/ledger"
	"github.com/warp/quest-ledger/session"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Gateway  *gateway.Gateway
	Accounts *session.Registry
}

func NewHandler(gw *gateway.Gateway, accounts *session.Registry) *Handler {
	return &Handler{Gateway: gw, Accounts: accounts}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login authenticates and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Gateway.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoginResponse(result))
}

// Register creates a parent account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := h.Gateway.Register(r.Context(), req.Username, req.Email, req.Password, req.PhoneNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// Logout revokes the presented session token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Gateway.Logout(r.Context(), bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// =============================================================================
// PARENT HANDLERS
// =============================================================================

// ListChildren returns every child's dashboard.
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	dashboards, err := h.Gateway.ListChildren(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ChildDTO, len(dashboards))
	for i, d := range dashboards {
		dtos[i] = toChildDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ProvisionChild creates a child ledger.
func (h *Handler) ProvisionChild(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req ProvisionChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	child, err := h.Gateway.ProvisionChild(r.Context(), sess, req.Name, req.AvatarColor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          string(child.ID),
		"name":        child.Name,
		"avatarColor": child.AvatarColor,
	})
}

// CreateQuest assigns a quest to a child. New quests always start PENDING.
func (h *Handler) CreateQuest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	childID := ledger.ChildID(chi.URLParam(r, "childID"))

	var req CreateQuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	q, err := h.Gateway.CreateQuest(r.Context(), sess, childID, req.Title, req.Description, req.Reward)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toQuestDTO(*q))
}

// VerifyQuest approves or rejects a submitted quest. Approval credits the
// reward exactly once; retries get 409 and no second credit.
func (h *Handler) VerifyQuest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	q, err := h.Gateway.VerifyQuest(r.Context(), sess,
		ledger.ChildID(req.ChildID), ledger.QuestID(req.QuestID), req.Approve)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuestDTO(*q))
}

// DeleteQuest permanently removes a non-verified quest.
func (h *Handler) DeleteQuest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	questID := ledger.QuestID(chi.URLParam(r, "questID"))

	if err := h.Gateway.DeleteQuest(r.Context(), sess, questID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// CHILD/SHARED HANDLERS
// =============================================================================

// GetDashboard returns one child's balance, active quests, and history.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	childID := ledger.ChildID(chi.URLParam(r, "childID"))

	d, err := h.Gateway.GetChildDashboard(r.Context(), sess, childID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChildDTO(*d))
}

// ToggleQuest flips a quest between PENDING and SUBMITTED.
func (h *Handler) ToggleQuest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	questID := ledger.QuestID(chi.URLParam(r, "questID"))

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	q, err := h.Gateway.SetQuestSubmission(r.Context(), sess, questID, req.Submitted)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuestDTO(*q))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// writeDomainError maps the ledger error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
	case errors.Is(err, ledger.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, ledger.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "Timed out", err)
	case errors.Is(err, session.ErrAccountExists):
		writeError(w, http.StatusConflict, "Account already exists", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
