// Package httputil provides the JSON response and error envelope shared by
// all handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "vetgate/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Description string   `json:"error_description,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto its status and envelope. Validation
// and business-rule errors surface their detail; internal failures return an
// opaque envelope and rely on server-side logging.
func WriteError(w http.ResponseWriter, err error) {
	var coded *dErrors.Error
	if !errors.As(err, &coded) {
		coded = dErrors.New(dErrors.CodeInternal, "internal error")
	}

	resp := ErrorResponse{Error: string(coded.Code)}
	switch coded.Code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		// opaque; full detail is logged server-side
	default:
		resp.Description = coded.Message
		resp.Fields = coded.Fields
	}
	WriteJSON(w, dErrors.ToHTTPStatus(coded.Code), resp)
}

// Validatable is a request body that can check and normalize itself after
// decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the request body into T and runs its Validate
// hook, writing the error response itself on failure. The second return
// value reports success.
func DecodeAndPrepare[T any, PT interface {
	Validatable
	*T
}](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		WriteError(w, dErrors.NewValidation("request body is not valid JSON", "body"))
		return nil, false
	}
	if err := PT(&v).Validate(); err != nil {
		WriteError(w, err)
		return nil, false
	}
	return &v, true
}
