// Package httputil centralizes JSON response rendering so every endpoint
// returns the same envelope: a success flag, and on failure a stable error
// kind plus a human-readable message. Internal errors omit the message so raw
// infrastructure detail is never forwarded to callers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "custodia/pkg/domain-errors"
)

// WriteJSON renders payload with the success flag set.
func WriteJSON(w http.ResponseWriter, status int, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["success"]; !ok {
		payload["success"] = true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError translates a domain error into the JSON error envelope.
// Unrecognized errors collapse to internal_error with no message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]any{
		"success": false,
		"error":   string(code),
	}
	if code != dErrors.CodeInternal {
		var gw dErrors.GatewayError
		if errors.As(err, &gw) && gw.Description != "" {
			body["message"] = gw.Description
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(body)
}
