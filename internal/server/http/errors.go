package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/efiling/internal/errs"
)

// Error codes of the JSON envelope.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeConflict       = "CONFLICT"
	CodeAlreadyExists  = "ALREADY_EXISTS"
	CodeAlreadyCharged = "ALREADY_CHARGED"
	CodeRateLimited    = "RATE_LIMITED"
	CodePartialFailure = "PARTIAL_FAILURE"
	CodeInternal       = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// noticeBody is returned with 200 when the request was already satisfied.
type noticeBody struct {
	Notice string `json:"notice"`
	Data   any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// classify maps a service error to a status and an envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, errs.ErrAlreadyCharged):
		return http.StatusOK, CodeAlreadyCharged
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, errs.ErrPartialFailure):
		return http.StatusInternalServerError, CodePartialFailure
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// fail writes err in the envelope. Internal errors are logged and their
// text is not exposed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if code == CodeAlreadyCharged {
		writeJSON(w, status, noticeBody{Notice: err.Error()})
		return
	}
	msg := err.Error()
	if code == CodeInternal {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	WriteError(w, status, code, msg)
}
