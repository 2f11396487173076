package repofake

import (
	"sort"
	"sync"

	"github.com/omnikey-app/omnikey/usage"
)

var _ usage.Repo = (*FakeUsageRepo)(nil)

type FakeUsageRepo struct {
	records map[string]usage.Record
	lock    sync.RWMutex
}

func NewFakeUsageRepo() *FakeUsageRepo {
	return &FakeUsageRepo{
		records: make(map[string]usage.Record),
	}
}

func (r *FakeUsageRepo) Put(id string, record usage.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.records[id] = record
	return nil
}

func (r *FakeUsageRepo) List() ([]usage.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]usage.Record, 0, len(r.records))
	for _, record := range r.records {
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *FakeUsageRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.records = make(map[string]usage.Record)
	return nil
}
