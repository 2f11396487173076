package repofake

import (
	"sort"
	"sync"

	"github.com/omnikey-app/omnikey/apps"
	"github.com/omnikey-app/omnikey/store"
)

var _ apps.Repo = (*FakeAppRepo)(nil)

type FakeAppRepo struct {
	apps map[string]apps.App
	lock sync.RWMutex
}

func NewFakeAppRepo() *FakeAppRepo {
	return &FakeAppRepo{
		apps: make(map[string]apps.App),
	}
}

func (r *FakeAppRepo) Get(id string) (apps.App, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	app, ok := r.apps[id]
	if !ok {
		return apps.App{}, store.ErrNotFound
	}
	return app, nil
}

func (r *FakeAppRepo) Put(id string, app apps.App) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.apps[id] = app
	return nil
}

func (r *FakeAppRepo) List() ([]apps.App, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]apps.App, 0, len(r.apps))
	for _, app := range r.apps {
		result = append(result, app)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *FakeAppRepo) Delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.apps, id)
	return nil
}

func (r *FakeAppRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.apps = make(map[string]apps.App)
	return nil
}
