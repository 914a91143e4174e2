package server

import (
	"encoding/json"
	"net/http"

	errs "github.com/deno-plc/build/pkg/errors"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch {
	case errs.IsInvalid(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.Is(err, errs.ErrCodeTransformParse):
		return http.StatusUnprocessableEntity
	case errs.Is(err, errs.ErrCodeUnsupported):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

// writeError responds with the error's user message. Causes of internal
// errors stay in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, description string) {
	status := statusFor(err)
	msg := errs.UserMessage(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "path", r.URL.Path, "err", err)
		if errs.GetCode(err) == "" {
			msg = "Internal server error"
		}
	}
	writeJSON(w, status, errorResponse{Error: msg, Description: description})
}
