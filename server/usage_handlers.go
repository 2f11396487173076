package server

import "net/http"

func (s *Server) UsageListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.repos.Usage.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to retrieve usage records")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) UsageClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.repos.Usage.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear usage records")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Usage records cleared"})
	}
}
