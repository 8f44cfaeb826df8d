// Package httpapi exposes the add-on over HTTP. It owns routing, session
// authentication, request decoding and the mapping of service errors to
// status codes; everything else is delegated to the services package.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds every JSON request body. Notes are the largest
// payload and are capped well below this after sanitizing.
const maxBodyBytes = 4 << 20

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldError names one invalid request field.
type FieldError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// Response is the body of every error reply.
type Response struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Kind    string       `json:"kind,omitempty"`
	Plan    string       `json:"plan,omitempty"`
	Field   string       `json:"field,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Write encodes v as the JSON body of the reply.
func Write(rw http.ResponseWriter, status int, v any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}

// Read decodes and validates a JSON request body. On failure it writes the
// 400 reply itself and returns false.
func Read(rw http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(rw, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Write(rw, http.StatusRequestEntityTooLarge, Response{Error: "request_too_large"})
			return false
		}
		Write(rw, http.StatusBadRequest, Response{
			Error:   "invalid_request",
			Message: "Request body must be valid JSON.",
		})
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			Write(rw, http.StatusBadRequest, Response{Error: "invalid_request", Message: err.Error()})
			return false
		}
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fe.Field(), Detail: describe(fe)})
		}
		Write(rw, http.StatusBadRequest, Response{
			Error:   "invalid_request",
			Message: "Validation failed.",
			Errors:  out,
		})
		return false
	}
	return true
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
