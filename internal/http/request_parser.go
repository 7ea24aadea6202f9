// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating JSON request
// bodies and query parameters.

package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"kidcash/internal/core"
)

const maxBodyBytes = 64 << 10

// bodyError reports a request body that is not usable JSON.
type bodyError struct {
	msg string
}

func (e *bodyError) Error() string { return e.msg }

var errEmptyBody = &bodyError{msg: "request body is empty"}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// decodeJSON reads at most maxBodyBytes of JSON into dst, rejecting
// unknown fields, and then checks dst's validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}

	dec := codec.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &bodyError{msg: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return validateStruct(v, dst)
}

// validateStruct runs the validate tags and converts failures into a
// core.ValidationError so they map onto the same 400 response as store
// validation.
func validateStruct(v *validator.Validate, dst any) error {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate request: %w", err)
	}
	out := &core.ValidationError{}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, core.FieldError{Field: fe.Field(), Message: describeTag(fe)})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}

// Amount is a money value sent as a decimal string ("12.50", "12,50") or a
// JSON number. It is parsed only when the handler asks for it so a bad
// amount surfaces as a field error rather than a body error.
type Amount struct {
	raw string
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		a.raw = ""
	case strings.HasPrefix(s, `"`):
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		a.raw = unq
	default:
		a.raw = s
	}
	return nil
}

// IsSet reports whether the field was present and non-null.
func (a Amount) IsSet() bool {
	return strings.TrimSpace(a.raw) != ""
}

// Money parses the amount, reporting failures against field.
func (a Amount) Money(field string) (core.Money, error) {
	if !a.IsSet() {
		return core.Money{}, core.NewValidationError(field, "is required")
	}
	m, err := core.ParseMoney(a.raw)
	if err != nil {
		return core.Money{}, core.WrapFieldError(field, err)
	}
	return m, nil
}

var deadlineLayouts = []string{time.RFC3339Nano, time.RFC3339, time.DateOnly}

// parseDeadline accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date.
func parseDeadline(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, core.NewValidationError("deadline", "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

// queryValue returns a trimmed, sanitized query parameter.
func queryValue(r *http.Request, key string) string {
	return sanitizeInput(r.URL.Query().Get(key))
}

// sanitizeInput removes control characters other than tab and newlines
// and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
