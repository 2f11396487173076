package store

import (
	"go.etcd.io/bbolt"
)

// KV is the generic named-collection contract exposed over the broker's
// /store HTTP API. Values are opaque bytes; the caller owns their meaning.
type KV interface {
	Get(collection, key string) ([]byte, error)
	Put(collection, key string, value []byte) error
	Delete(collection, key string) error
	List(collection string) ([][]byte, error)
	Clear(collection string) error
}

type boltKV struct {
	db *bbolt.DB
}

var _ KV = (*boltKV)(nil)

func NewKV(db *bbolt.DB) KV {
	return &boltKV{db: db}
}

func (s *boltKV) ensure(collection string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(collection))
		return err
	})
}

func (s *boltKV) Get(collection, key string) ([]byte, error) {
	if err := s.ensure(collection); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(collection)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

func (s *boltKV) Put(collection, key string, value []byte) error {
	if err := s.ensure(collection); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(collection)).Put([]byte(key), value)
	})
}

func (s *boltKV) Delete(collection, key string) error {
	if err := s.ensure(collection); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(collection)).Delete([]byte(key))
	})
}

func (s *boltKV) List(collection string) ([][]byte, error) {
	if err := s.ensure(collection); err != nil {
		return nil, err
	}
	values := make([][]byte, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(collection)).ForEach(func(k, v []byte) error {
			values = append(values, append([]byte(nil), v...))
			return nil
		})
	})
	return values, err
}

func (s *boltKV) Clear(collection string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(collection)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(collection))
		return err
	})
}
