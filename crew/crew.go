/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package crew drives a set of missions, one step per tick.
package crew

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"
	"github.com/Mubelotix/minecraft-bot/sio"
	"github.com/Mubelotix/minecraft-bot/storage"

	"github.com/google/uuid"
)

// Crew owns missions and steps each of them once per Tick.
//
// Replacing a mission cancels it: the old mission is dropped without
// running again.
type Crew struct {
	sync.RWMutex

	Id string `json:"id"`

	Unit    *core.Unit       `json:"-"`
	Options *machine.Options `json:"-"`

	// Storage, if not nil, gets a snapshot of every running
	// mission after each tick.
	Storage storage.Storage `json:"-"`

	Verbose bool `json:"-"`

	missions map[string]*Mission
	ticks    uint64
}

// Mission is a running machine and the slot that holds it.
type Mission struct {
	Id   string `json:"id"`
	Proc string `json:"proc"`

	// Started is the number of the first tick the mission will
	// see.
	Started uint64 `json:"started"`

	slot *mission.Slot[machine.Tick]
}

// Machine returns the mission's machine, which is nil once the
// mission has finished or been canceled.
func (x *Mission) Machine() *machine.Machine {
	var m *machine.Machine
	x.slot.Peek(func(cur mission.Mission[machine.Tick, interface{}]) {
		m, _ = cur.(*machine.Machine)
	})
	return m
}

// record snapshots the mission while nothing else can step or
// replace it.
func (x *Mission) record() (*storage.Record, error) {
	var (
		rec *storage.Record
		err error
	)
	x.slot.Peek(func(cur mission.Mission[machine.Tick, interface{}]) {
		if m, is := cur.(*machine.Machine); is {
			rec, err = storage.NewRecord(x.Id, m)
		}
	})
	return rec, err
}

func NewCrew(id string, u *core.Unit, opts *machine.Options) *Crew {
	if id == "" {
		id = NewId()
	}
	return &Crew{
		Id:       id,
		Unit:     u,
		Options:  opts,
		missions: make(map[string]*Mission),
	}
}

// NewId makes a short random mission id.
func NewId() string {
	return uuid.New().String()[:8]
}

func (c *Crew) logf(format string, args ...interface{}) {
	if c.Verbose {
		log.Printf("crew %s "+format, append([]interface{}{c.Id}, args...)...)
	}
}

// Ticks returns the number of completed ticks.
func (c *Crew) Ticks() uint64 {
	c.RLock()
	defer c.RUnlock()
	return c.ticks
}

// Start creates a mission running the procedure.  An empty id gets a
// new one.  A mission with the same id is replaced.
func (c *Crew) Start(ctx context.Context, id, proc string, args map[string]interface{}) (string, error) {
	m, err := machine.New(c.Unit, proc, args, c.Options)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = NewId()
	}
	c.install(id, m)
	c.logf("started %s (%s)", id, proc)
	return id, nil
}

func (c *Crew) install(id string, m *machine.Machine) {
	c.Lock()
	defer c.Unlock()
	x, have := c.missions[id]
	if !have {
		x = &Mission{
			Id:   id,
			slot: mission.NewSlot[machine.Tick](),
		}
		c.missions[id] = x
	}
	x.Proc = m.Program().Name
	x.Started = c.ticks + 1
	x.slot.Replace(m)
}

// Cancel drops the mission.
func (c *Crew) Cancel(ctx context.Context, id string) (bool, error) {
	c.Lock()
	x, have := c.missions[id]
	if have {
		x.slot.Take()
		delete(c.missions, id)
	}
	c.Unlock()
	if !have {
		return false, nil
	}
	c.logf("canceled %s", id)
	if c.Storage != nil {
		if err := c.Storage.Delete(ctx, c.Id, id); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Missions returns copies of the running missions ordered by id.
func (c *Crew) Missions() []*Mission {
	c.RLock()
	defer c.RUnlock()
	acc := make([]*Mission, 0, len(c.missions))
	for _, x := range c.missions {
		y := *x
		acc = append(acc, &y)
	}
	sort.Slice(acc, func(i, j int) bool {
		return acc[i].Id < acc[j].Id
	})
	return acc
}

// Get returns a copy of the mission with the given id.
func (c *Crew) Get(id string) (*Mission, bool) {
	c.RLock()
	defer c.RUnlock()
	x, have := c.missions[id]
	if !have {
		return nil, false
	}
	y := *x
	return &y, true
}

// Tick steps every mission once with the given world, in order of
// mission id.
//
// Each mission's outcome is a Batch.  Missions that finish are
// dropped.  When the crew has Storage, the snapshots of the missions
// that are still running are saved and finished missions are
// deleted.
func (c *Crew) Tick(ctx context.Context, w machine.Tick) ([]*sio.Batch, error) {
	ms := c.Missions()

	c.Lock()
	c.ticks++
	n := c.ticks
	c.Unlock()

	var (
		batches  = make([]*sio.Batch, 0, len(ms))
		running  = make([]*storage.Record, 0, len(ms))
		finished = make([]string, 0, 1)
	)

	for _, x := range ms {
		out := mission.NewOutbox()
		r, ok := x.slot.Step(w, out)
		if !ok {
			continue
		}
		batches = append(batches, sio.NewBatch(x.Id, n, r, out.Drain()))

		if r.Status.Terminal() {
			c.logf("%s %s", x.Id, r)
			finished = append(finished, x.Id)
			continue
		}
		if c.Storage != nil {
			rec, err := x.record()
			if err != nil {
				log.Printf("crew %s can't snapshot %s: %s", c.Id, x.Id, err)
				continue
			}
			if rec != nil {
				running = append(running, rec)
			}
		}
	}

	if 0 < len(finished) {
		c.Lock()
		for _, id := range finished {
			// A mission might have been replaced during the
			// step.
			if x, have := c.missions[id]; have && !x.slot.Busy() {
				delete(c.missions, id)
			}
		}
		c.Unlock()
	}

	if c.Storage != nil {
		if err := c.Storage.Save(ctx, c.Id, running); err != nil {
			return batches, err
		}
		if 0 < len(finished) {
			if err := c.Storage.Delete(ctx, c.Id, finished...); err != nil {
				return batches, err
			}
		}
	}

	return batches, nil
}

// Load restores the missions saved in Storage.
func (c *Crew) Load(ctx context.Context) (int, error) {
	if c.Storage == nil {
		return 0, nil
	}
	rs, err := c.Storage.Load(ctx, c.Id)
	if err != nil {
		return 0, err
	}
	for _, r := range rs {
		m, err := r.Restore(c.Unit, c.Options)
		if err != nil {
			return 0, fmt.Errorf("mission %s: %w", r.Id, err)
		}
		if m.Finished() {
			continue
		}
		c.install(r.Id, m)
	}
	c.logf("loaded %d missions", len(rs))
	return len(rs), nil
}
