// Package store provides the broker's persistence: a single bbolt database
// holding one bucket per collection, with JSON-encoded values. Typed access
// goes through Bucket[T]; the generic HTTP store API uses the raw byte
// accessors so the broker never needs to understand provider-defined
// payloads.
package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("not found")

type Bucket[T any] struct {
	bucketName string
	db         *bbolt.DB
}

func NewBucket[T any](db *bbolt.DB, bucketName string) (*Bucket[T], error) {
	b := &Bucket[T]{
		bucketName: bucketName,
		db:         db,
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[NewBucket] create bucket %q", bucketName)
	}
	return b, nil
}

func (b *Bucket[T]) Get(key string) (T, error) {
	var data T
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(b.bucketName)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &data)
	})
	return data, err
}

func (b *Bucket[T]) Put(key string, data T) error {
	v, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "[Bucket.Put] marshal")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(b.bucketName)).Put([]byte(key), v)
	})
}

func (b *Bucket[T]) List() ([]T, error) {
	result := make([]T, 0)
	return result, b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(b.bucketName)).ForEach(func(k, v []byte) error {
			var data T
			if err := json.Unmarshal(v, &data); err != nil {
				return err
			}
			result = append(result, data)
			return nil
		})
	})
}

func (b *Bucket[T]) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(b.bucketName)).Delete([]byte(key))
	})
}

func (b *Bucket[T]) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(b.bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(b.bucketName))
		return err
	})
}

func (b *Bucket[T]) Count() (int, error) {
	var count int
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(b.bucketName)).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// Open opens (creating if necessary) the broker database.
func Open(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "[Open] open database %q", path)
	}
	return db, nil
}
