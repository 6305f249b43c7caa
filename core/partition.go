package core

import (
	"fmt"
	"go/token"
)

// partitioner splits a procedure body into states.
//
// A state is a maximal run of statements that doesn't cross a
// suspending loop.  Statement-level blocks and suspending loop bodies
// are partitioned recursively and their states are spliced into the
// sequence.
type partitioner struct {
	*tracker
	states []*State
	loops  map[string]*LoopEntry
	cur    *State
	stack  []string
}

func newPartitioner(t *tracker) *partitioner {
	return &partitioner{
		tracker: t,
		states:  make([]*State, 0, 8),
		loops:   make(map[string]*LoopEntry),
	}
}

// open returns the current state, starting a new one if needed.
func (p *partitioner) open() *State {
	if p.cur != nil {
		return p.cur
	}
	s := &State{
		Index: len(p.states),
		Next:  -1,
		Loops: append([]string(nil), p.stack...),
		start: len(p.fields),
	}
	s.Name = fmt.Sprintf("State%d", s.Index)

	// Fall through from the previous state unless it already
	// loops back.
	if n := len(p.states); 0 < n {
		if prev := p.states[n-1]; prev.Next < 0 {
			prev.Next = s.Index
		}
	}

	p.states = append(p.states, s)
	p.cur = s
	return s
}

func (p *partitioner) flush() {
	p.cur = nil
}

func (p *partitioner) add(s Stmt) {
	st := p.open()
	st.Body = append(st.Body, s)
}

func (p *partitioner) seq(ss []Stmt) {
	for _, s := range ss {
		switch vv := s.(type) {
		case *Let:
			if loop, is := suspending(vv.Init); is {
				p.flush()
				entry := p.loop(loop)
				fs := p.declare(vv)
				if len(vv.Names) != 1 {
					p.ds.Errorf(p.proc.Name, vv.Pos(), "loop %s can initialise only one name", loop.Label)
				} else if len(fs) == 1 && entry != nil {
					entry.Decl = fs[0]
				}
				continue
			}
			p.add(vv)
			p.declare(vv)

		case *ExprStmt:
			switch x := vv.X.(type) {
			case *Loop:
				if x.Suspend {
					p.flush()
					p.loop(x)
					continue
				}
			case *Block:
				p.flush()
				p.seq(x.Stmts)
				p.flush()
				continue
			case *Assign:
				if loop, is := suspending(x.Value); is && x.Op == token.ASSIGN {
					id, _ := x.Target.(*Ident)
					var f *Field
					if id != nil {
						f, _ = p.field(id.Name)
					}
					if f == nil {
						p.ds.Errorf(p.proc.Name, vv.Pos(), "loop %s must initialise a declared name", loop.Label)
					}
					p.flush()
					if entry := p.loop(loop); entry != nil && f != nil {
						entry.Decl = f
					}
					continue
				}
			}
			p.add(vv)

		default:
			p.add(s)
		}
	}
}

// loop partitions a suspending loop's body and records its entry.
func (p *partitioner) loop(x *Loop) *LoopEntry {
	if _, dup := p.loops[x.Label]; dup {
		p.ds.Errorf(p.proc.Name, x.Pos(), "loop label %s is used twice", x.Label)
		return nil
	}

	first := len(p.states)
	entry := &LoopEntry{
		Label:    x.Label,
		Continue: first,
	}
	if n := len(p.stack); 0 < n {
		entry.Parent = p.stack[n-1]
	}
	p.loops[x.Label] = entry

	p.stack = append(p.stack, x.Label)
	p.seq(x.Body.Stmts)
	p.flush()

	if len(p.states) == first {
		// An empty body still needs a state to spin in.
		p.open()
		p.flush()
	}

	last := p.states[len(p.states)-1]
	if 0 <= last.Next {
		// The body ends with a nested loop, whose last state
		// already loops back.  Add a state to jump from.
		last = p.open()
		p.flush()
	}
	last.Next = first
	last.Yield = true

	p.stack = p.stack[:len(p.stack)-1]
	entry.Break = len(p.states)
	entry.end = len(p.fields)

	return entry
}

// finish closes the top-level sequence and assigns fields.
func (p *partitioner) finish() {
	p.flush()

	exit := len(p.states) == 0
	for _, e := range p.loops {
		if e.Break == len(p.states) {
			exit = true
		}
	}
	if exit {
		p.open()
		p.flush()
	}

	for _, s := range p.states {
		k := s.start
		if 0 < len(s.Loops) {
			if e, have := p.loops[s.Loops[0]]; have {
				k = e.end
			}
		}
		s.Fields = append([]*Field(nil), p.fields[:k]...)
	}
}
