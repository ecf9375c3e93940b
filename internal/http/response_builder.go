// Package http serves the JSON API.
//
// This file implements a small builder for JSON responses so every handler
// writes status, headers and body the same way.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Imaginaryverse/spending-habits/internal/auth"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/services"
)

// Error codes returned in ErrorBody.Code.
const (
	CodeValidation       = "validation_error"
	CodeUnauthorized     = "unauthorized"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeConflict         = "conflict"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ResponseBuilder provides a fluent API for JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body. A nil value sends no body.
func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.data = v
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.data)
}

func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		Data(ErrorBody{Status: statusCode, Message: message, Code: code})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeValidation, message)
}

func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, CodeUnauthorized, message).
		Header("WWW-Authenticate", `Bearer realm="spending"`)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, CodeConflict, message)
}

func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, "internal server error")
}

// writeError maps a service error onto a response. Rejections are logged at
// debug level with their error type; unknown errors are logged and reported
// as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := applog.FromContext(r.Context())
	rejected := func(errorType string) {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.NewFields().WithError(err).WithErrorType(errorType).ToSlice()...)
	}

	switch {
	case core.IsValidationError(err), errors.Is(err, errBadBody), errors.Is(err, services.ErrUnknownCategory),
		errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
		rejected(applog.ErrorTypeValidation)
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		rejected(applog.ErrorTypeNotFound)
		NotFoundError("not found").Write(w)
	case errors.Is(err, auth.ErrEmailExists), errors.Is(err, core.ErrConflict):
		rejected(applog.ErrorTypeConflict)
		ConflictError(err.Error()).Write(w)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		rejected(applog.ErrorTypeAuth)
		UnauthorizedError(err.Error()).Write(w)
	default:
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, applog.ComponentHTTP,
			r.Method+" "+r.URL.Path, applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError().Write(w)
	}
}
