package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail and the request id, and
// returned to the client as the coded user message from core.MapError.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/bookkeeper/internal/backup"
	"github.com/JonMunkholm/bookkeeper/internal/core"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errNoFile is returned when a request carries no body or no file part.
var errNoFile = errors.New("no file provided")

// respondError logs err and writes its user message with the status from
// statusFor.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus is respondError with an explicit status code.
func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	s.logRequestError(r, err, statusCode, userMsg.Code)

	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, backup.ErrNoBackups):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBackupsDisabled):
		return http.StatusConflict
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case ledger.IsParse(err), ledger.IsValidation(err), ledger.IsPolicy(err):
		return http.StatusBadRequest
	case ledger.IsReference(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// logRequestError logs the technical error with the request id for
// correlation. Server errors are logged at Error, client errors at Warn.
func (s *Server) logRequestError(r *http.Request, err error, statusCode int, code string) {
	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)
}

// logEncodeError logs a failure to write a response body after the headers
// were sent.
func (s *Server) logEncodeError(r *http.Request, err error) {
	slog.Error("response encode error",
		"path", r.URL.Path,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
}
