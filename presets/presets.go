// Package presets groups API keys into named, ordered lists. The order is
// most-recently-used: re-adding a key that is already in the preset moves
// it to the tail instead of duplicating it.
package presets

import "time"

// DefaultID is the preset created on first open; it cannot be deleted.
const DefaultID = "default"

type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Keys      []string  `json:"keys"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AddKey appends keyID to the preset's key list, keeping ids unique. If the
// key is already present it is moved to the tail; the list length does not
// change in that case.
func (p *Preset) AddKey(keyID string) {
	p.RemoveKey(keyID)
	p.Keys = append(p.Keys, keyID)
}

// RemoveKey drops keyID from the preset's key list if present.
func (p *Preset) RemoveKey(keyID string) {
	for i, id := range p.Keys {
		if id == keyID {
			p.Keys = append(p.Keys[:i], p.Keys[i+1:]...)
			return
		}
	}
}

// HasKey reports whether keyID is part of the preset.
func (p *Preset) HasKey(keyID string) bool {
	for _, id := range p.Keys {
		if id == keyID {
			return true
		}
	}
	return false
}

type Repo interface {
	Get(id string) (Preset, error)
	Put(id string, preset Preset) error
	List() ([]Preset, error)
	Delete(id string) error
	Clear() error
}
