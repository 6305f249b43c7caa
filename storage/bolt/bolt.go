// Package bolt is a storage.Storage backed by a BoltDB file.
//
// Each crew is a bucket, and each Record is a JSON value keyed by its
// id.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/Mubelotix/minecraft-bot/storage"

	bolt "go.etcd.io/bbolt"
)

func JS(x interface{}) string {
	js, err := json.Marshal(&x)
	if err != nil {
		return err.Error()
	}
	return string(js)
}

var ErrNotOpen = errors.New("storage isn't open")

type Storage struct {
	Debug bool

	// Timeout is how long Open waits for the file lock.
	Timeout time.Duration

	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	return &Storage{
		filename: filename,
		Timeout:  time.Second,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: s.Timeout,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("BoltDB Storage."+format, args...)
	}
}

func (s *Storage) Save(ctx context.Context, crew string, rs []*storage.Record) error {
	s.logf("Save %s %s", crew, JS(rs))

	if s.db == nil {
		return ErrNotOpen
	}
	if len(rs) == 0 {
		return nil
	}

	vals := make(map[string][]byte, len(rs))
	for _, r := range rs {
		// To save some space, remove id.
		js, err := json.Marshal(&storage.Record{
			Proc:     r.Proc,
			Snapshot: r.Snapshot,
		})
		if err != nil {
			return err
		}
		vals[r.Id] = js
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(crew))
		if err != nil {
			return err
		}
		for id, bs := range vals {
			if err := b.Put([]byte(id), bs); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Load(ctx context.Context, crew string) ([]*storage.Record, error) {
	s.logf("Load %s", crew)
	if s.db == nil {
		return nil, ErrNotOpen
	}
	rs := make([]*storage.Record, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(crew))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for id, bs := c.First(); id != nil; id, bs = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r storage.Record
			if err := json.Unmarshal(bs, &r); err != nil {
				return err
			}
			r.Id = string(id)
			rs = append(rs, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("Load %s found %d records", crew, len(rs))

	return rs, nil
}

func (s *Storage) Delete(ctx context.Context, crew string, ids ...string) error {
	s.logf("Delete %s %v", crew, ids)
	if s.db == nil {
		return ErrNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(crew))
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		if k, _ := b.Cursor().First(); k == nil {
			return tx.DeleteBucket([]byte(crew))
		}
		return nil
	})
}

func (s *Storage) List(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	var acc []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			acc = append(acc, string(name))
			return nil
		})
	})
	return acc, err
}
