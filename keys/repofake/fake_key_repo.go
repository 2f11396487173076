package repofake

import (
	"sort"
	"sync"

	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/store"
)

var _ keys.Repo = (*FakeKeyRepo)(nil)

type FakeKeyRepo struct {
	keys map[string]keys.APIKey
	lock sync.RWMutex
}

func NewFakeKeyRepo() *FakeKeyRepo {
	return &FakeKeyRepo{
		keys: make(map[string]keys.APIKey),
	}
}

func (r *FakeKeyRepo) Get(id string) (keys.APIKey, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	key, ok := r.keys[id]
	if !ok {
		return keys.APIKey{}, store.ErrNotFound
	}
	return key, nil
}

func (r *FakeKeyRepo) Put(id string, key keys.APIKey) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.keys[id] = key
	return nil
}

func (r *FakeKeyRepo) List() ([]keys.APIKey, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]keys.APIKey, 0, len(r.keys))
	for _, key := range r.keys {
		result = append(result, key)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *FakeKeyRepo) Delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.keys, id)
	return nil
}

func (r *FakeKeyRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.keys = make(map[string]keys.APIKey)
	return nil
}
