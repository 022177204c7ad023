package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/index"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

type CaseService interface {
	CreateCase(ctx context.Context, title, description, owner string) (index.Case, error)
	GetCase(ctx context.Context, caseID string) (index.Case, error)
	CasesForOwner(ctx context.Context, owner string) ([]index.Case, error)
	LinkEvidenceToCase(ctx context.Context, evidenceID int64, caseID string) error
	EvidenceForOwner(ctx context.Context, owner string) ([]index.EvidenceProjection, error)
}

type CaseHandler struct {
	cases CaseService
}

func NewCaseHandler(cases CaseService) *CaseHandler {
	return &CaseHandler{cases: cases}
}

type createCaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

func (h *CaseHandler) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	c, err := h.cases.CreateCase(r.Context(), req.Title, req.Description, req.Owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"case": toCaseJSON(c)})
}

func (h *CaseHandler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"case": toCaseJSON(c)})
}

func (h *CaseHandler) handleListCases(w http.ResponseWriter, r *http.Request) {
	list, err := h.cases.CasesForOwner(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]caseJSON, 0, len(list))
	for _, c := range list {
		out = append(out, toCaseJSON(c))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"cases": out})
}

type linkRequest struct {
	EvidenceID int64  `json:"evidenceId"`
	CaseID     string `json:"caseId"`
}

func (h *CaseHandler) handleAddEvidenceToCase(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.cases.LinkEvidenceToCase(r.Context(), req.EvidenceID, req.CaseID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

func (h *CaseHandler) handleUserEvidence(w http.ResponseWriter, r *http.Request) {
	list, err := h.cases.EvidenceForOwner(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]projectionJSON, 0, len(list))
	for _, projection := range list {
		out = append(out, toProjectionJSON(projection))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evidence": out})
}
