package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/omnikey-app/omnikey/internal/utils"
	"github.com/omnikey-app/omnikey/presets"
)

func (s *Server) PresetsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.repos.Presets.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to retrieve presets")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// PresetRequest uses pointer fields so updates can distinguish "leave
// unchanged" from an explicit empty value.
type PresetRequest struct {
	Name *string  `json:"name"`
	Keys []string `json:"keys"`
}

func (s *Server) PresetsAddHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PresetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || utils.Value(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if s.presetNameTaken(utils.Value(req.Name), "") {
			writeError(w, http.StatusConflict, "A preset with this name already exists")
			return
		}
		now := s.nowTime()
		preset := presets.Preset{
			ID:        uuid.NewString(),
			Name:      utils.Value(req.Name),
			Keys:      req.Keys,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if preset.Keys == nil {
			preset.Keys = []string{}
		}
		if err := s.repos.Presets.Put(preset.ID, preset); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save preset")
			return
		}
		writeJSON(w, http.StatusOK, preset)
	}
}

func (s *Server) PresetsUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presetID := r.PathValue("id")
		var req PresetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || presetID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		preset, err := s.repos.Presets.Get(presetID)
		if err != nil {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		if req.Name != nil {
			if s.presetNameTaken(*req.Name, presetID) {
				writeError(w, http.StatusConflict, "A preset with this name already exists")
				return
			}
			preset.Name = *req.Name
		}
		if req.Keys != nil {
			preset.Keys = req.Keys
		}
		preset.UpdatedAt = s.nowTime()
		if err := s.repos.Presets.Put(preset.ID, preset); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save preset")
			return
		}
		writeJSON(w, http.StatusOK, preset)
	}
}

func (s *Server) PresetsDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presetID := r.PathValue("id")
		if presetID == "" {
			writeError(w, http.StatusBadRequest, "Preset ID is required")
			return
		}
		if presetID == presets.DefaultID {
			writeError(w, http.StatusBadRequest, "The default preset cannot be deleted")
			return
		}
		if _, err := s.repos.Presets.Get(presetID); err != nil {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		if err := s.repos.Presets.Delete(presetID); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to delete preset")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Preset deleted successfully"})
	}
}

type PresetAddKeyRequest struct {
	Key string `json:"key"`
}

// PresetsAddKeyHandler appends a key to a preset, moving it to the tail if
// it is already a member.
func (s *Server) PresetsAddKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presetID := r.PathValue("id")
		var req PresetAddKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}
		preset, err := s.repos.Presets.Get(presetID)
		if err != nil {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		if _, err := s.repos.Keys.Get(req.Key); err != nil {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		preset.AddKey(req.Key)
		preset.UpdatedAt = s.nowTime()
		if err := s.repos.Presets.Put(preset.ID, preset); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save preset")
			return
		}
		writeJSON(w, http.StatusOK, preset)
	}
}

func (s *Server) presetNameTaken(name, excludeID string) bool {
	list, err := s.repos.Presets.List()
	if err != nil {
		return false
	}
	for _, p := range list {
		if p.Name == name && p.ID != excludeID {
			return true
		}
	}
	return false
}
