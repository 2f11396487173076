package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/omnikey-app/omnikey/keys"
)

func (s *Server) KeysListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.repos.Keys.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to retrieve keys")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) KeysAddHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var key keys.APIKey
		if err := json.NewDecoder(r.Body).Decode(&key); err != nil || key.Name == "" || key.Token == "" {
			writeError(w, http.StatusBadRequest, "name and token are required")
			return
		}
		if key.ID == "" {
			key.ID = keys.NewID()
		}
		if key.Type == "" {
			key.Type = "manual"
		}
		if key.Protocol == "" {
			key.Protocol = "openai"
		}
		if err := s.repos.Keys.Put(key.ID, key); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save key")
			return
		}
		writeJSON(w, http.StatusOK, key)
	}
}

func (s *Server) KeysUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID := r.PathValue("id")
		var key keys.APIKey
		if err := json.NewDecoder(r.Body).Decode(&key); err != nil || keyID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		key.ID = keyID
		if _, err := s.repos.Keys.Get(key.ID); err != nil {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		if err := s.repos.Keys.Put(key.ID, key); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save key")
			return
		}
		writeJSON(w, http.StatusOK, key)
	}
}

// KeysDeleteHandler removes a key and everything that points at it: the key
// is pulled out of every preset, and apps granted through it lose their
// grant.
func (s *Server) KeysDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID := r.PathValue("id")
		if keyID == "" {
			writeError(w, http.StatusBadRequest, "Key ID is required")
			return
		}
		if _, err := s.repos.Keys.Get(keyID); err != nil {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		if err := s.repos.Keys.Delete(keyID); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to delete key")
			return
		}

		presetList, err := s.repos.Presets.List()
		if err == nil {
			for _, p := range presetList {
				if !p.HasKey(keyID) {
					continue
				}
				p.RemoveKey(keyID)
				p.UpdatedAt = s.nowTime()
				if err := s.repos.Presets.Put(p.ID, p); err != nil {
					log.Error().Err(err).Str("preset", p.ID).Msg("KeysDeleteHandler preset update")
				}
			}
		}

		if err := s.grants.RevokeByKey(keyID); err != nil {
			log.Error().Err(err).Str("key", keyID).Msg("KeysDeleteHandler revoke")
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Key deleted successfully"})
	}
}
