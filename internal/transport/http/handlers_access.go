package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"custodia/internal/ledger"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

type AccessService interface {
	CanRead(ctx context.Context, evidenceID int64, principal string) (bool, error)
	Grant(ctx context.Context, evidenceID int64, owner, grantee string) error
	Revoke(ctx context.Context, evidenceID int64, owner, target string) error
	Get(ctx context.Context, evidenceID int64, principal string) (ledger.Record, error)
	AccessibleEvidence(ctx context.Context, principal string) ([]ledger.Record, error)
	AllEvidence(ctx context.Context, viewer string) ([]ledger.Record, error)
	EventLog(ctx context.Context, evidenceID int64) ([]ledger.Event, error)
	Role(ctx context.Context, principal string) (ledger.Role, error)
	AssignRole(ctx context.Context, admin, principal string, role ledger.Role) error
}

type AccessHandler struct {
	access AccessService
}

func NewAccessHandler(access AccessService) *AccessHandler {
	return &AccessHandler{access: access}
}

func (h *AccessHandler) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	evidenceID, ok := evidenceIDParam(w, r)
	if !ok {
		return
	}
	record, err := h.access.Get(r.Context(), evidenceID, chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evidence": toEvidenceJSON(record)})
}

func (h *AccessHandler) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	evidenceID, ok := evidenceIDParam(w, r)
	if !ok {
		return
	}
	allowed, err := h.access.CanRead(r.Context(), evidenceID, chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}

func (h *AccessHandler) handleAllEvidence(w http.ResponseWriter, r *http.Request) {
	records, err := h.access.AllEvidence(r.Context(), r.URL.Query().Get("viewer"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evidence": toEvidenceListJSON(records)})
}

func (h *AccessHandler) handleAccessibleEvidence(w http.ResponseWriter, r *http.Request) {
	records, err := h.access.AccessibleEvidence(r.Context(), r.URL.Query().Get("principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evidence": toEvidenceListJSON(records)})
}

type accessMutationRequest struct {
	EvidenceID int64  `json:"evidenceId"`
	Owner      string `json:"owner"`
	Grantee    string `json:"grantee"`
	Target     string `json:"target"`
}

func (h *AccessHandler) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req accessMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.access.Grant(r.Context(), req.EvidenceID, req.Owner, req.Grantee); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

func (h *AccessHandler) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	var req accessMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.access.Revoke(r.Context(), req.EvidenceID, req.Owner, req.Target); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

func (h *AccessHandler) handleEventLog(w http.ResponseWriter, r *http.Request) {
	evidenceID, ok := evidenceIDParam(w, r)
	if !ok {
		return
	}
	log, err := h.access.EventLog(r.Context(), evidenceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": toEventListJSON(log)})
}

func (h *AccessHandler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.access.Role(r.Context(), chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"role": role.String()})
}

type assignRoleRequest struct {
	Admin     string `json:"admin"`
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

func (h *AccessHandler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	role, ok := parseRole(req.Role)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "role must be investigator or admin"))
		return
	}
	if err := h.access.AssignRole(r.Context(), req.Admin, req.Principal, role); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

func parseRole(s string) (ledger.Role, bool) {
	switch s {
	case "investigator":
		return ledger.RoleInvestigator, true
	case "admin":
		return ledger.RoleAdmin, true
	default:
		return ledger.RoleNone, false
	}
}

func evidenceIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	evidenceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || evidenceID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "evidence id must be a positive integer"))
		return 0, false
	}
	return evidenceID, true
}
