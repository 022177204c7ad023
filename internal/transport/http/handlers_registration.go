package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"custodia/internal/registration"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

const (
	// maxUploadBytes bounds the evidence file itself. A file over the bound is
	// rejected, never truncated: the fingerprint and the pinned content must
	// cover exactly the bytes the client submitted.
	maxUploadBytes = 64 << 20
	// Multipart boundaries and the owner/name/description fields ride
	// alongside the file in the request body.
	maxFormOverheadBytes = 1 << 20
)

type RegistrationService interface {
	Register(ctx context.Context, submission registration.Submission) (registration.Result, error)
}

type RegistrationHandler struct {
	registrations RegistrationService
}

func NewRegistrationHandler(registrations RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// handleUpload accepts a multipart submission: the evidence file plus owner,
// name, and description form fields.
func (h *RegistrationHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxFormOverheadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes + maxFormOverheadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, oversizedUploadError())
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file field is required"))
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		httputil.WriteError(w, oversizedUploadError())
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read uploaded file"))
		return
	}

	result, err := h.registrations.Register(r.Context(), registration.Submission{
		Content:      content,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Owner:        r.FormValue("owner"),
		DisplayName:  r.FormValue("name"),
		Description:  r.FormValue("description"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, map[string]any{
		"evidence":  toEvidenceJSON(result.Record),
		"duplicate": result.Duplicate,
	})
}

func oversizedUploadError() error {
	return dErrors.New(dErrors.CodeBadRequest,
		fmt.Sprintf("uploaded file exceeds the %d byte limit", maxUploadBytes))
}
