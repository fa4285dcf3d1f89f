package httputil

import (
	"encoding/json"
	"net/http"

	"docsync/internal/domain"
	"docsync/pkg/logger"
)

// RespondJSON marshals data before writing headers so an encoding failure
// never leaves a partial response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// HandleError maps err to its status and public message. Server errors are
// logged with their cause, which never reaches the client.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.Sugar.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	RespondError(w, status, domain.PublicMessage(err))
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}
