package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/RoMcHiKo0o/ratelimiter/internal/config"
)

// addAPI implements POST /admin/add_api.
func (s *Server) addAPI(w http.ResponseWriter, r *http.Request) {
	var entry map[string]any
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	src, err := config.DecodeSource(entry)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Register(src.Identifier, src.RateLimit); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"data": "Api has been added"})
}

// getAPIs implements GET /admin/get_apis.
func (s *Server) getAPIs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Keys())
}
