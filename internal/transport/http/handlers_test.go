package httptransport

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custodia/internal/access"
	"custodia/internal/cases"
	"custodia/internal/content"
	"custodia/internal/events"
	"custodia/internal/index"
	"custodia/internal/ledger"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/registration"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.New()

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.New()
	contentStore := content.NewMemory()
	ledgerClient := ledger.NewMemory("root-admin")
	indexStore := index.NewInMemoryStore()
	cache := access.NewInMemoryCache(time.Minute)
	idempotency := registration.NewMemoryIdempotency(time.Minute)
	retry := registration.NewIndexRetryWorker(indexStore, log, testMetrics)

	coordinator := registration.NewCoordinator(
		contentStore, ledgerClient, indexStore, idempotency, retry,
		events.Nop{}, log, testMetrics, 2*time.Second, 3,
	)
	reconciler := access.NewReconciler(ledgerClient, cache, events.Nop{}, log, testMetrics)
	linker := cases.NewLinker(indexStore, log, testMetrics)

	return NewRouter(
		NewRegistrationHandler(coordinator),
		NewAccessHandler(reconciler),
		NewCaseHandler(linker),
		log,
		5*time.Second,
	)
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, fileBody []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(fileBody)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func upload(t *testing.T, router http.Handler, owner, name string, fileBody []byte) *httptest.ResponseRecorder {
	t.Helper()
	buf, contentType := multipartUpload(t, map[string]string{
		"owner":       owner,
		"name":        name,
		"description": "test evidence",
	}, "report.pdf", fileBody)
	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadRegistersEvidence(t *testing.T) {
	router := newTestRouter(t)

	rec := upload(t, router, "alice", "Report", []byte("report bytes"))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, false, body["duplicate"])
	evidence := body["evidence"].(map[string]any)
	require.Equal(t, float64(1), evidence["evidenceId"])
	require.Equal(t, "alice", evidence["owner"])
	require.NotEmpty(t, evidence["contentId"])
}

func TestUploadDuplicateConverges(t *testing.T) {
	router := newTestRouter(t)

	first := upload(t, router, "alice", "Report", []byte("report bytes"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := upload(t, router, "alice", "Report", []byte("report bytes"))
	require.Equal(t, http.StatusOK, second.Code)
	body := decode(t, second)
	require.Equal(t, true, body["duplicate"])
	require.Equal(t, float64(1), body["evidence"].(map[string]any)["evidenceId"])
}

func TestUploadWithoutFile(t *testing.T) {
	router := newTestRouter(t)

	buf, contentType := multipartUpload(t, map[string]string{"owner": "alice", "name": "Report"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "bad_request", body["error"])
}

func TestUploadOversizedRejected(t *testing.T) {
	router := newTestRouter(t)

	oversized := bytes.Repeat([]byte("x"), maxUploadBytes+1024)
	rec := upload(t, router, "alice", "Report", oversized)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "bad_request", body["error"])
	require.Contains(t, body["message"], "exceeds")

	// Nothing reached the ledger: the next registration takes the first id.
	rec = upload(t, router, "alice", "Report", []byte("report bytes"))
	require.Equal(t, http.StatusCreated, rec.Code)
	evidence := decode(t, rec)["evidence"].(map[string]any)
	require.Equal(t, float64(1), evidence["evidenceId"])
}

func TestAccessLifecycle(t *testing.T) {
	router := newTestRouter(t)
	upload(t, router, "alice", "Report", []byte("report bytes"))

	// Bob starts without access.
	rec := doJSON(t, router, http.MethodGet, "/evidence/1/access/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decode(t, rec)["allowed"])

	// Reading as bob is denied outright.
	rec = doJSON(t, router, http.MethodGet, "/evidence/1/bob", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "access_denied", decode(t, rec)["error"])

	// Grant, then the check flips immediately.
	rec = doJSON(t, router, http.MethodPost, "/grantAccess", map[string]any{
		"evidenceId": 1, "owner": "alice", "grantee": "bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/evidence/1/access/bob", nil)
	require.Equal(t, true, decode(t, rec)["allowed"])

	rec = doJSON(t, router, http.MethodGet, "/evidence/1/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Revoke flips it back.
	rec = doJSON(t, router, http.MethodPost, "/revokeAccess", map[string]any{
		"evidenceId": 1, "owner": "alice", "target": "bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/evidence/1/access/bob", nil)
	require.Equal(t, false, decode(t, rec)["allowed"])

	// The ledger event log recorded the full history.
	rec = doJSON(t, router, http.MethodGet, "/logs/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	eventList := decode(t, rec)["events"].([]any)
	require.Len(t, eventList, 3)
}

func TestGrantByNonOwnerRejected(t *testing.T) {
	router := newTestRouter(t)
	upload(t, router, "alice", "Report", []byte("report bytes"))

	rec := doJSON(t, router, http.MethodPost, "/grantAccess", map[string]any{
		"evidenceId": 1, "owner": "bob", "grantee": "carol",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "access_denied", decode(t, rec)["error"])
}

func TestEvidenceListings(t *testing.T) {
	router := newTestRouter(t)
	upload(t, router, "alice", "First", []byte("one"))
	upload(t, router, "bob", "Second", []byte("two"))

	rec := doJSON(t, router, http.MethodGet, "/accessibleEvidence?principal=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["evidence"].([]any)
	require.Len(t, list, 1)

	// Scan-all as alice silently skips bob's item.
	rec = doJSON(t, router, http.MethodGet, "/evidence?viewer=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode(t, rec)["evidence"].([]any)
	require.Len(t, list, 1)
}

func TestCaseLifecycle(t *testing.T) {
	router := newTestRouter(t)
	upload(t, router, "alice", "Report", []byte("report bytes"))

	rec := doJSON(t, router, http.MethodPost, "/createCase", map[string]any{
		"title": "Fraud Inquiry", "description": "wire fraud", "owner": "alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	caseID := decode(t, rec)["case"].(map[string]any)["caseId"].(string)
	require.NotEmpty(t, caseID)

	rec = doJSON(t, router, http.MethodPost, "/addEvidenceToCase", map[string]any{
		"evidenceId": 1, "caseId": caseID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/case/"+caseID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)["case"].(map[string]any)
	require.Equal(t, []any{float64(1)}, got["evidenceIds"])

	rec = doJSON(t, router, http.MethodGet, "/userEvidence?owner=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	projections := decode(t, rec)["evidence"].([]any)
	require.Len(t, projections, 1)
	require.Equal(t, []any{caseID}, projections[0].(map[string]any)["caseIds"])

	rec = doJSON(t, router, http.MethodGet, "/cases?owner=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["cases"].([]any), 1)
}

func TestRoleEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/roles/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "none", decode(t, rec)["role"])

	rec = doJSON(t, router, http.MethodPost, "/assignRole", map[string]any{
		"admin": "root-admin", "principal": "alice", "role": "investigator",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/roles/alice", nil)
	require.Equal(t, "investigator", decode(t, rec)["role"])

	rec = doJSON(t, router, http.MethodPost, "/assignRole", map[string]any{
		"admin": "alice", "principal": "bob", "role": "bogus",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadEvidenceIDParam(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/evidence/zero/access/bob", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "bad_request", decode(t, rec)["error"])
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
}
