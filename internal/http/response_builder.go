// Package http serves the KidCash stores as a JSON API.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps store errors onto status codes.

package http

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"kidcash/internal/core"
	klog "kidcash/internal/log"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Error codes carried in the error envelope.
const (
	CodeValidation        = "validation_failed"
	CodeInvalidBody       = "invalid_body"
	CodeBodyTooLarge      = "body_too_large"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeNoSession         = "no_session"
	CodeInvalidTransition = "invalid_transition"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

// ErrorBody is the payload of every failed response.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  []core.FieldError `json:"fields,omitempty"`
}

type (
	dataEnvelope struct {
		Data any `json:"data"`
	}
	errorEnvelope struct {
		Error *ErrorBody `json:"error"`
	}
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
	err        *ErrorBody
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a response header.
func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// Data sets the success payload, wrapped as {"data": ...}.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Error sets the error payload, wrapped as {"error": ...}.
func (b *JSONResponseBuilder) Error(code, message string, fields ...core.FieldError) *JSONResponseBuilder {
	b.err = &ErrorBody{Code: code, Message: message, Fields: fields}
	return b
}

// Write sends the response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	var payload any = dataEnvelope{Data: b.data}
	if b.err != nil {
		payload = errorEnvelope{Error: b.err}
	}
	body, err := codec.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal_error","message":"encode response"}}`))
		return
	}
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// OK writes a 200 with the given payload.
func OK(w http.ResponseWriter, v any) {
	NewJSONResponse().Data(v).Write(w)
}

// Created writes a 201 with the given payload.
func Created(w http.ResponseWriter, v any) {
	NewJSONResponse().Status(http.StatusCreated).Data(v).Write(w)
}

// NoContent writes a bare 204.
func NoContent(w http.ResponseWriter) {
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// ErrorFromDomain builds the response for an error returned by a store
// or by request decoding.
func ErrorFromDomain(err error) *JSONResponseBuilder {
	b := NewJSONResponse()

	var tooLarge *http.MaxBytesError
	var verr *core.ValidationError
	var terr *core.TransitionError
	var berr *bodyError

	switch {
	case errors.As(err, &tooLarge):
		return b.Status(http.StatusRequestEntityTooLarge).Error(CodeBodyTooLarge, "request body too large")
	case errors.As(err, &berr):
		return b.Status(http.StatusBadRequest).Error(CodeInvalidBody, berr.Error())
	case errors.As(err, &terr):
		return b.Status(http.StatusConflict).Error(CodeInvalidTransition, terr.Error())
	case errors.As(err, &verr):
		return b.Status(http.StatusBadRequest).Error(CodeValidation, "invalid input", verr.Errors...)
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInvalidAmount):
		return b.Status(http.StatusBadRequest).Error(CodeValidation, err.Error())
	case errors.Is(err, core.ErrNoSession):
		return b.Status(http.StatusUnauthorized).Error(CodeNoSession, "login required")
	case errors.Is(err, core.ErrForbidden):
		return b.Status(http.StatusForbidden).Error(CodeForbidden, "only a parent can do this")
	case errors.Is(err, core.ErrNotFound):
		return b.Status(http.StatusNotFound).Error(CodeNotFound, err.Error())
	default:
		return b.Status(http.StatusInternalServerError).Error(CodeInternal, "internal server error")
	}
}

// writeError maps err to a response and logs it. Server errors log at
// error level, client errors at debug.
func writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	b := ErrorFromDomain(err)
	logger := klog.FromContext(r.Context())
	if b.statusCode >= http.StatusInternalServerError {
		logger.LogError(r.Context(), "Request failed", err, operation, klog.FieldPath, r.URL.Path)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			klog.FieldOperation, operation,
			klog.FieldStatusCode, b.statusCode,
			klog.FieldError, err.Error())
	}
	b.Write(w)
}

// RateLimited is the body sent when a client is throttled.
func RateLimited(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Error(CodeRateLimited, "rate limit exceeded, please try again later").
		Write(w)
}
