package server

import (
	"encoding/json"
	"net/http"

	"github.com/omnikey-app/omnikey/grants"
)

type AppRegisterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UID         string `json:"uid"`
}

// AppRegisterHandler runs the grant handshake for a requesting app. 200
// with a token means granted; 403 means the app is pending and the user
// has to act — a protocol state the caller surfaces, not an error to retry.
func (s *Server) AppRegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppRegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Description == "" {
			writeError(w, http.StatusBadRequest, "name and description are required")
			return
		}

		result, err := s.grants.Register(r.Context(), grants.Registration{
			Name:        req.Name,
			Description: req.Description,
			UID:         req.UID,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to register app")
			return
		}
		if !result.Granted {
			writeError(w, http.StatusForbidden, "App registration denied")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": result.Token})
	}
}

func (s *Server) AppListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allApps, err := s.repos.Apps.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to retrieve apps")
			return
		}
		writeJSON(w, http.StatusOK, allApps)
	}
}

type AppToggleRequest struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
	Key     string `json:"key"`
}

func (s *Server) AppToggleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppToggleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}

		if err := s.grants.Toggle(req.ID, req.Granted, req.Key); err != nil {
			writeError(w, http.StatusNotFound, "App not found")
			return
		}

		action := "authorized"
		if !req.Granted {
			action = "revoked"
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "App " + action + " successfully"})
	}
}

func (s *Server) AppDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID := r.PathValue("id")
		if appID == "" {
			writeError(w, http.StatusBadRequest, "App ID is required")
			return
		}
		if err := s.grants.Delete(appID); err != nil {
			writeError(w, http.StatusNotFound, "App not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "App deleted successfully"})
	}
}

func (s *Server) AppClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.grants.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to delete apps")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "All apps deleted successfully"})
	}
}
