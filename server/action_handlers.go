package server

import (
	"net/http"
	"net/url"
)

// CheckHandler answers the discovery probe. Callers scanning the port
// range look for the marker field; anything else listening on a port in
// the range will not produce it.
func (s *Server) CheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"__omnikey": true,
			"version":   Version,
		})
	}
}

// PreflightHandler backs the OPTIONS catch-all. The CORS middleware writes
// the preflight response and never calls through, so this only answers
// non-CORS OPTIONS requests.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// OpenUIHandler asks the broker to raise the management surface. Used by
// the omnikey:// URI scheme handler once the broker is running.
func (s *Server) OpenUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.openUI(url.Values{}); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to open UI")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
