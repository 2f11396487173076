package repofake

import (
	"sort"
	"sync"

	"github.com/omnikey-app/omnikey/presets"
	"github.com/omnikey-app/omnikey/store"
)

var _ presets.Repo = (*FakePresetRepo)(nil)

type FakePresetRepo struct {
	presets map[string]presets.Preset
	lock    sync.RWMutex
}

func NewFakePresetRepo() *FakePresetRepo {
	return &FakePresetRepo{
		presets: make(map[string]presets.Preset),
	}
}

func (r *FakePresetRepo) Get(id string) (presets.Preset, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	preset, ok := r.presets[id]
	if !ok {
		return presets.Preset{}, store.ErrNotFound
	}
	return preset, nil
}

func (r *FakePresetRepo) Put(id string, preset presets.Preset) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.presets[id] = preset
	return nil
}

func (r *FakePresetRepo) List() ([]presets.Preset, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]presets.Preset, 0, len(r.presets))
	for _, preset := range r.presets {
		result = append(result, preset)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *FakePresetRepo) Delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.presets, id)
	return nil
}

func (r *FakePresetRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.presets = make(map[string]presets.Preset)
	return nil
}
