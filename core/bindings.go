package core

import (
	"go/token"
)

// tracker accumulates the fields of a procedure in declaration order.
//
// Nested scopes are flattened into this one list, so a name can be
// declared only once per procedure.
type tracker struct {
	proc   *Procedure
	ds     *Diagnostics
	fields []*Field
	byName map[string]*Field
	tick   map[string]*Param
}

func newTracker(p *Procedure, ds *Diagnostics) *tracker {
	t := &tracker{
		proc:   p,
		ds:     ds,
		fields: make([]*Field, 0, 8),
		byName: make(map[string]*Field),
		tick:   make(map[string]*Param),
	}

	for _, x := range p.Params {
		if !token.IsIdentifier(x.Name) {
			ds.Errorf(p.Name, "params", "bad parameter name %q", x.Name)
			continue
		}
		if x.Type == "" {
			ds.Errorf(p.Name, "params", "parameter %s has no type", x.Name)
		}
		if t.taken(x.Name) {
			ds.Errorf(p.Name, "params", "parameter %s is declared twice", x.Name)
			continue
		}
		if x.Tick {
			t.tick[x.Name] = x
			continue
		}
		f := &Field{Name: x.Name, Type: x.Type, Mut: x.Mut, Param: true}
		t.fields = append(t.fields, f)
		t.byName[f.Name] = f
	}

	return t
}

func (t *tracker) taken(name string) bool {
	if _, have := t.byName[name]; have {
		return true
	}
	_, have := t.tick[name]
	return have
}

// declare validates a declaration and adds its names as fields.
//
// The returned slice has one entry per name that was added.
func (t *tracker) declare(s *Let) []*Field {
	if len(s.Names) != len(s.Types) {
		t.ds.Errorf(t.proc.Name, s.Pos(), "%d names but %d types", len(s.Names), len(s.Types))
		return nil
	}

	spawn, _ := s.Init.(*Spawn)

	acc := make([]*Field, 0, len(s.Names))
	for i, b := range s.Names {
		f := &Field{Name: b.Name, Type: s.Types[i], Mut: b.Mut}
		if spawn != nil {
			f.Mission = spawn.Proc
		} else if f.Type == "" {
			t.ds.Errorf(t.proc.Name, s.Pos(), "cannot infer the type of %s; write it out", b.Name)
			continue
		}
		if !token.IsIdentifier(b.Name) || b.Name == "_" {
			t.ds.Errorf(t.proc.Name, s.Pos(), "bad name %q", b.Name)
			continue
		}
		if t.taken(b.Name) {
			t.ds.Errorf(t.proc.Name, s.Pos(), "%s is already declared; shadowing is not supported", b.Name)
			continue
		}
		t.fields = append(t.fields, f)
		t.byName[f.Name] = f
		acc = append(acc, f)
	}
	return acc
}

// field returns an already declared field.
func (t *tracker) field(name string) (*Field, bool) {
	f, have := t.byName[name]
	return f, have
}
