package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/foyerhq/foyer/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 document describing Foyer's API. The
// route set is fixed, so the document is generated once and cached for the
// life of the process.
type OpenAPIHandler struct {
	once sync.Once
	body []byte
	err  error
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler() *OpenAPIHandler {
	return &OpenAPIHandler{}
}

// ServeSpec returns the API document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.body, h.err = json.Marshal(openapi.Generate())
	})
	if h.err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate spec: "+h.err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.body)
}
