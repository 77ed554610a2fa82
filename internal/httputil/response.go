package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"collabchat/internal/errors"
	"collabchat/internal/tracing"
	"collabchat/internal/validation"
)

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20

// WriteJSON writes v with status. A nil v writes only the status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its HTTP status and writes the public error body
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteJSON(w, errors.HTTPStatusCode(err), errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}

// DecodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.NewValidationError("body", "", "request body is required")
	}
	if err := validation.ValidateHTTPRequestSize(r, MaxBodyBytes); err != nil {
		return err
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.NewValidationError("body", "", "request body is required")
		}
		return errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("invalid JSON body: %v", err)).
			WithUserMessage("Request body is not valid JSON")
	}
	return nil
}
