package handler

import (
	"encoding/json"
	"net/http"

	"github.com/foyerhq/foyer/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v, rejecting fields the
// target type does not declare. The body is closed after decoding regardless
// of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
