package repofake

import (
	"sort"
	"sync"

	"github.com/omnikey-app/omnikey/store"
	"github.com/omnikey-app/omnikey/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]users.User
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]users.User),
	}
}

func (r *FakeUserRepo) Get(username string) (users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	user, ok := r.users[username]
	if !ok {
		return users.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *FakeUserRepo) Put(username string, user users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.users[username] = user
	return nil
}

func (r *FakeUserRepo) List() ([]users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]users.User, 0, len(r.users))
	for _, user := range r.users {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (r *FakeUserRepo) Delete(username string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.users, username)
	return nil
}

func (r *FakeUserRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.users = make(map[string]users.User)
	return nil
}
