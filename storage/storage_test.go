package storage

import (
	"context"
	"testing"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"
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
        - if: i >= limit
          then:
            - break: l
  - return: i
`

func TestImpl(t *testing.T) {
	var _ Storage = NewMemStorage()
}

func TestMemStorage(t *testing.T) {
	ctx := context.Background()

	procs, err := core.LoadProcedures([]byte(Dedent(countYAML)), "count.yaml")
	if err != nil {
		t.Fatal(err)
	}
	u, err := core.Compile(ctx, procs, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, err := machine.New(u, "count", map[string]interface{}{"limit": 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Step(nil, nil)

	r, err := NewRecord("b", m)
	if err != nil {
		t.Fatal(err)
	}

	s := NewMemStorage()
	if err := s.Save(ctx, "simpsons", []*Record{r, {Id: "a", Proc: "count"}}); err != nil {
		t.Fatal(err)
	}
	rs, err := s.Load(ctx, "simpsons")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 2 || rs[0].Id != "a" || rs[1].Id != "b" {
		t.Fatal(JS(rs))
	}

	if _, err := rs[0].Restore(u, nil); err != ErrNoSnapshot {
		t.Fatal(err)
	}
	m, err = rs[1].Restore(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Step(nil, nil)
	if r := m.Step(nil, nil); r.Status != mission.Done || r.Value != 3 {
		t.Fatal(r)
	}

	if names, _ := s.List(ctx); len(names) != 1 || names[0] != "simpsons" {
		t.Fatal(names)
	}
	if err := s.Delete(ctx, "simpsons", "a", "b"); err != nil {
		t.Fatal(err)
	}
	if names, _ := s.List(ctx); len(names) != 0 {
		t.Fatal(names)
	}
	if rs, _ := s.Load(ctx, "simpsons"); len(rs) != 0 {
		t.Fatal(JS(rs))
	}
}
