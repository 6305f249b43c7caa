package core

import (
	"fmt"
	"sort"
)

// Field is a variable that lives in a state because it can be used
// after a tick boundary.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty" yaml:",omitempty"`
	Mut  bool   `json:"mut,omitempty" yaml:",omitempty"`

	// Param is set for fields that come from constructor
	// parameters.
	Param bool `json:"param,omitempty" yaml:",omitempty"`

	// Mission names the procedure of a sub-mission handle.
	Mission string `json:"mission,omitempty" yaml:",omitempty"`
}

func (f *Field) String() string {
	if f.Mission != "" {
		return f.Name + " " + f.Mission + " mission"
	}
	return f.Name + " " + f.Type
}

// State is one step of a compiled procedure.
//
// Every State's body ends with a Goto or Finish (or an expression
// that always performs one), so executing a body always determines
// what happens next.
type State struct {
	Index  int      `json:"index"`
	Name   string   `json:"name"`
	Fields []*Field `json:"fields,omitempty" yaml:",omitempty"`
	Body   []Stmt   `json:"-" yaml:"-"`

	// Next is the state that follows when the body runs to its
	// end, or -1 for the final state.
	Next int `json:"next"`

	// Yield is set when Next is a loop back-edge, which ends the
	// step.
	Yield bool `json:"yield,omitempty" yaml:",omitempty"`

	// Loops are the labels of the enclosing suspending loops,
	// outermost first.
	Loops []string `json:"loops,omitempty" yaml:",omitempty"`

	// start is the number of declarations before the state.
	start int
}

// Terminal reports whether the state is the last one.
func (s *State) Terminal() bool {
	return s.Next < 0
}

// Field finds a field by name.
func (s *State) Field(name string) (*Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// LoopEntry records where a suspending loop's continue and break go.
type LoopEntry struct {
	Label    string `json:"label"`
	Continue int    `json:"continue"`
	Break    int    `json:"break"`

	// Decl is the field a break value initialises, if the loop
	// initialises a declaration.
	Decl *Field `json:"decl,omitempty" yaml:",omitempty"`

	// Parent is the label of the enclosing suspending loop.
	Parent string `json:"parent,omitempty" yaml:",omitempty"`

	// Mission is the procedure awaited by a synthetic sub-mission
	// loop.
	Mission string `json:"mission,omitempty" yaml:",omitempty"`

	// end is the number of declarations after the body.
	end int
}

// Program is a compiled procedure.
type Program struct {
	Proc   *Procedure            `json:"-" yaml:"-"`
	Name   string                `json:"name"`
	States []*State              `json:"states"`
	Loops  map[string]*LoopEntry `json:"loops,omitempty" yaml:",omitempty"`

	// Fields is every field in declaration order.  Each state's
	// fields are a prefix of this list.
	Fields []*Field `json:"fields,omitempty" yaml:",omitempty"`

	// Subs are the procedures called as sub-missions.
	Subs []string `json:"subs,omitempty" yaml:",omitempty"`
}

// State returns the state with the given index.
func (p *Program) State(i int) (*State, error) {
	if i < 0 || len(p.States) <= i {
		return nil, &UnknownState{Proc: p.Name, State: fmt.Sprint(i)}
	}
	return p.States[i], nil
}

// StateNamed returns the state with the given name.
func (p *Program) StateNamed(name string) (*State, error) {
	for _, s := range p.States {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, &UnknownState{Proc: p.Name, State: name}
}

// Field finds a field by name.
func (p *Program) Field(name string) (*Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// LoopLabels returns the labels of the suspending loops in order of
// their first state.
func (p *Program) LoopLabels() []string {
	acc := make([]string, 0, len(p.Loops))
	for l := range p.Loops {
		acc = append(acc, l)
	}
	sort.Slice(acc, func(i, j int) bool {
		a, b := p.Loops[acc[i]], p.Loops[acc[j]]
		if a.Continue != b.Continue {
			return a.Continue < b.Continue
		}
		return a.Label < b.Label
	})
	return acc
}

// Unit is a set of programs compiled together, so that sub-mission
// calls between them can be checked.
type Unit struct {
	Programs map[string]*Program `json:"programs"`

	// Order lists program names in the order given to Compile.
	Order []string `json:"order"`
}

// Program returns the named program.
func (u *Unit) Program(name string) (*Program, error) {
	p, have := u.Programs[name]
	if !have {
		return nil, &UnknownProcedure{Name: name}
	}
	return p, nil
}
