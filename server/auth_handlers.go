package server

import (
	"encoding/json"
	"net/http"

	"github.com/omnikey-app/omnikey/users"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Status   string `json:"status"` // "success", "error", "not_registered"
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
}

// LoginHandler authenticates a local user and issues a bearer token. Wrong
// credentials come back as a 200 with an error status: the management UI
// distinguishes "bad password" from transport failure by body, not code.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, AuthResponse{Status: "error", Message: "Invalid request data"})
			return
		}

		allUsers, err := s.repos.Users.List()
		if err != nil || len(allUsers) == 0 {
			writeJSON(w, http.StatusOK, AuthResponse{Status: "not_registered"})
			return
		}

		user, err := s.repos.Users.Get(req.Username)
		if err != nil {
			writeJSON(w, http.StatusOK, AuthResponse{Status: "error", Message: "User not found"})
			return
		}

		if !user.CheckPassword(req.Password) {
			writeJSON(w, http.StatusOK, AuthResponse{Status: "error", Message: "Invalid username or password"})
			return
		}

		rawToken, err := s.tokens.Create(user.Username)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, AuthResponse{Status: "error", Message: "Failed to generate token"})
			return
		}

		writeJSON(w, http.StatusOK, AuthResponse{Status: "success", Username: user.Username, Token: rawToken})
	}
}

// RegisterUserHandler creates the local user account on first run.
func (s *Server) RegisterUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, AuthResponse{Status: "error", Message: "Invalid request data"})
			return
		}

		if _, err := s.repos.Users.Get(req.Username); err == nil {
			writeJSON(w, http.StatusOK, AuthResponse{Status: "error", Message: "User already exists"})
			return
		}

		user, err := users.New(req.Username, req.Password)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, AuthResponse{Status: "error", Message: "Failed to register"})
			return
		}
		if err := s.repos.Users.Put(user.Username, user); err != nil {
			writeJSON(w, http.StatusInternalServerError, AuthResponse{Status: "error", Message: "Failed to register"})
			return
		}

		rawToken, err := s.tokens.Create(user.Username)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, AuthResponse{Status: "error", Message: "Failed to generate token"})
			return
		}

		writeJSON(w, http.StatusOK, AuthResponse{Status: "success", Username: user.Username, Token: rawToken})
	}
}
