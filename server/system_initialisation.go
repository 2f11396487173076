package server

import (
	"github.com/pkg/errors"

	"github.com/omnikey-app/omnikey/presets"
	"github.com/omnikey-app/omnikey/store"
)

// InitialiseSystem seeds the state a fresh install needs before serving:
// the default preset, which every grant without an explicit key falls back
// to. Re-running against existing data is a no-op.
func (s *Server) InitialiseSystem() error {
	if _, err := s.repos.Presets.Get(presets.DefaultID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return errors.Wrap(err, "[Server.InitialiseSystem] read default preset")
	}

	now := s.nowTime()
	preset := presets.Preset{
		ID:        presets.DefaultID,
		Name:      "Default",
		Keys:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Presets.Put(preset.ID, preset); err != nil {
		return errors.Wrap(err, "[Server.InitialiseSystem] create default preset")
	}
	return nil
}
