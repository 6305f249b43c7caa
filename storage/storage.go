// Package storage persists mission snapshots so that a crew can
// survive a restart.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
)

// Record is a presentation of a mission's state as stored in a
// Storage system.
type Record struct {
	// Id is the id for the mission.
	Id string `json:"id,omitempty"`

	// Proc is the procedure the mission runs.
	Proc string `json:"proc"`

	Snapshot *machine.Snapshot `json:"snapshot"`
}

// NewRecord captures a Machine's state.
func NewRecord(id string, m *machine.Machine) (*Record, error) {
	s, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Record{
		Id:       id,
		Proc:     s.Proc,
		Snapshot: s,
	}, nil
}

// Restore rebuilds the Record's Machine.
func (r *Record) Restore(u *core.Unit, opts *machine.Options) (*machine.Machine, error) {
	if r.Snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return machine.Restore(u, r.Snapshot, opts)
}

var ErrNoSnapshot = errors.New("record has no snapshot")

// Storage is a persistence interface that's suitable for Crews.
//
// Records are grouped by crew.  Saving a Record replaces any Record
// with the same Id in that crew.
type Storage interface {
	Open(ctx context.Context) error

	Close(ctx context.Context) error

	Save(ctx context.Context, crew string, rs []*Record) error

	// Load returns the crew's Records ordered by Id.  An unknown
	// crew has no Records.
	Load(ctx context.Context, crew string) ([]*Record, error)

	Delete(ctx context.Context, crew string, ids ...string) error

	// List returns the crews that have Records.
	List(ctx context.Context) ([]string, error)
}

// MemStorage is a Storage that doesn't persist anything beyond the
// process.
type MemStorage struct {
	sync.Mutex

	crews map[string]map[string]*Record
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		crews: make(map[string]map[string]*Record),
	}
}

func (s *MemStorage) Open(ctx context.Context) error {
	return nil
}

func (s *MemStorage) Close(ctx context.Context) error {
	return nil
}

func (s *MemStorage) Save(ctx context.Context, crew string, rs []*Record) error {
	if len(rs) == 0 {
		return nil
	}
	s.Lock()
	defer s.Unlock()
	rows, have := s.crews[crew]
	if !have {
		rows = make(map[string]*Record, len(rs))
		s.crews[crew] = rows
	}
	for _, r := range rs {
		c := *r
		rows[r.Id] = &c
	}
	return nil
}

func (s *MemStorage) Load(ctx context.Context, crew string) ([]*Record, error) {
	s.Lock()
	defer s.Unlock()
	rows := s.crews[crew]
	acc := make([]*Record, 0, len(rows))
	for _, r := range rows {
		c := *r
		acc = append(acc, &c)
	}
	Sort(acc)
	return acc, nil
}

func (s *MemStorage) Delete(ctx context.Context, crew string, ids ...string) error {
	s.Lock()
	defer s.Unlock()
	rows := s.crews[crew]
	for _, id := range ids {
		delete(rows, id)
	}
	if len(rows) == 0 {
		delete(s.crews, crew)
	}
	return nil
}

func (s *MemStorage) List(ctx context.Context) ([]string, error) {
	s.Lock()
	defer s.Unlock()
	acc := make([]string, 0, len(s.crews))
	for name := range s.crews {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc, nil
}

// Sort orders Records by Id.
func Sort(rs []*Record) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Id < rs[j].Id
	})
}
