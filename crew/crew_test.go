package crew

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"
	"github.com/Mubelotix/minecraft-bot/sio"
	"github.com/Mubelotix/minecraft-bot/storage"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"
)

const countYAML = `
name: count
result: int
params:
  - {name: limit, type: int}
body:
  - let: {name: i, type: int, mut: true, value: 0}
  - loop:
      label: l
      suspend: true
      body:
        - do: i += 1
        - do: emit(i)
        - if: i >= limit
          then:
            - break: l
  - return: i
`

func unit(t *testing.T) *core.Unit {
	procs, err := core.LoadProcedures([]byte(Dedent(countYAML)), "count.yaml")
	if err != nil {
		t.Fatal(err)
	}
	u, err := core.Compile(context.Background(), procs, nil)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func limit(n int) map[string]interface{} {
	return map[string]interface{}{"limit": n}
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	c := NewCrew("simpsons", unit(t), nil)

	if _, err := c.Start(ctx, "homer", "count", limit(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Start(ctx, "marge", "count", limit(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Start(ctx, "bart", "nope", nil); err == nil {
		t.Fatal("unknown procedure accepted")
	}

	bs, err := c.Tick(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 2 {
		t.Fatal(JS(bs))
	}
	if b := bs[0]; b.Mission != "homer" || b.Status != mission.Done || JS(b.Messages) != "[1]" {
		t.Fatal(JS(b))
	}
	if b := bs[1]; b.Mission != "marge" || b.Status != mission.InProgress || b.Tick != 1 {
		t.Fatal(JS(b))
	}

	if ms := c.Missions(); len(ms) != 1 || ms[0].Id != "marge" {
		t.Fatal(JS(ms))
	}

	bs, err = c.Tick(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 1 || bs[0].Status != mission.Done || JS(bs[0].Messages) != "[2]" {
		t.Fatal(JS(bs))
	}
	if n := len(c.Missions()); n != 0 {
		t.Fatal(n)
	}
	if c.Ticks() != 2 {
		t.Fatal(c.Ticks())
	}
}

func TestReplaceAndCancel(t *testing.T) {
	ctx := context.Background()
	c := NewCrew("", unit(t), nil)
	if c.Id == "" {
		t.Fatal("no crew id")
	}

	id, err := c.Start(ctx, "", "count", limit(3))
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("no mission id")
	}
	c.Tick(ctx, nil)
	c.Tick(ctx, nil)

	// Replacing starts over.
	if _, err := c.Start(ctx, id, "count", limit(3)); err != nil {
		t.Fatal(err)
	}
	x, have := c.Get(id)
	if !have || x.Started != 3 {
		t.Fatal(JS(x))
	}
	bs, _ := c.Tick(ctx, nil)
	if len(bs) != 1 || JS(bs[0].Messages) != "[1]" {
		t.Fatal(JS(bs))
	}

	canceled, err := c.Cancel(ctx, id)
	if err != nil || !canceled {
		t.Fatal(canceled, err)
	}
	if canceled, _ = c.Cancel(ctx, id); canceled {
		t.Fatal("canceled twice")
	}
	if bs, _ := c.Tick(ctx, nil); len(bs) != 0 {
		t.Fatal(JS(bs))
	}
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	u := unit(t)
	s := storage.NewMemStorage()

	c := NewCrew("simpsons", u, nil)
	c.Storage = s
	if _, err := c.Start(ctx, "lisa", "count", limit(3)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Start(ctx, "maggie", "count", limit(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Tick(ctx, nil); err != nil {
		t.Fatal(err)
	}

	rs, err := s.Load(ctx, "simpsons")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].Id != "lisa" {
		t.Fatal(JS(rs))
	}

	// A new crew picks up where the old one left off.
	d := NewCrew("simpsons", u, nil)
	d.Storage = s
	n, err := d.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatal(n)
	}
	bs, err := d.Tick(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 1 || JS(bs[0].Messages) != "[2]" {
		t.Fatal(JS(bs))
	}
	bs, _ = d.Tick(ctx, nil)
	if len(bs) != 1 || bs[0].Status != mission.Done || bs[0].Value != 3 {
		t.Fatal(JS(bs))
	}
	if rs, _ := s.Load(ctx, "simpsons"); len(rs) != 0 {
		t.Fatal(JS(rs))
	}
}

type recorder struct {
	sync.Mutex
	batches []*sio.Batch
}

func (r *recorder) Start(ctx context.Context) error { return nil }

func (r *recorder) World(ctx context.Context) (<-chan machine.Tick, error) {
	return nil, nil
}

func (r *recorder) Send(ctx context.Context, b *sio.Batch) error {
	r.Lock()
	r.batches = append(r.batches, b)
	r.Unlock()
	return nil
}

func (r *recorder) Stop(ctx context.Context) error { return nil }

func TestRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewCrew("simpsons", unit(t), nil)
	if _, err := c.Start(ctx, "lisa", "count", limit(2)); err != nil {
		t.Fatal(err)
	}

	r := &recorder{}
	if err := c.Run(ctx, time.Millisecond, r, true); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() != nil {
		t.Fatal("crew never went idle")
	}

	r.Lock()
	defer r.Unlock()
	if len(r.batches) != 2 {
		t.Fatal(JS(r.batches))
	}
	if b := r.batches[1]; b.Status != mission.Done || b.Value != 2 {
		t.Fatal(JS(b))
	}
}

func TestConcurrentStartAndTick(t *testing.T) {
	ctx := context.Background()
	c := NewCrew("simpsons", unit(t), nil)
	c.Storage = storage.NewMemStorage()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := c.Start(ctx, "a", "count", limit(5)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := c.Tick(ctx, nil); err != nil {
				t.Error(err)
				return
			}
			for _, x := range c.Missions() {
				_ = x.Machine()
			}
		}
	}()
	wg.Wait()

	if c.Ticks() != 200 {
		t.Fatal(c.Ticks())
	}
	x, have := c.Get("a")
	if !have {
		// Finished after the last Start.
		return
	}
	if m := x.Machine(); m != nil && m.Program().Name != "count" {
		t.Fatal(m.Program().Name)
	}
}

func TestMachineAfterCancel(t *testing.T) {
	ctx := context.Background()
	c := NewCrew("simpsons", unit(t), nil)
	if _, err := c.Start(ctx, "a", "count", limit(2)); err != nil {
		t.Fatal(err)
	}
	x, _ := c.Get("a")
	if x.Machine() == nil {
		t.Fatal("no machine")
	}
	c.Cancel(ctx, "a")
	if x.Machine() != nil {
		t.Fatal("canceled mission kept its machine")
	}
}
