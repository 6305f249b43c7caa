package tools

import (
	"fmt"
	"sort"

	"github.com/Mubelotix/minecraft-bot/core"
)

// EdgeKind says how control moves from one state to another.
type EdgeKind string

const (
	// Next is a fall-through within the same step.
	Next EdgeKind = "next"

	// Yield ends the step and resumes at the target next tick.
	Yield EdgeKind = "yield"

	Break    EdgeKind = "break"
	Continue EdgeKind = "continue"

	// Await is taken when a sub-mission is done.
	Await EdgeKind = "await"

	// Done and Failed end the mission.  Their target is -1.
	Done   EdgeKind = "done"
	Failed EdgeKind = "failed"
)

// Edge is a possible transition of a compiled program.
type Edge struct {
	From  int      `json:"from"`
	To    int      `json:"to"`
	Kind  EdgeKind `json:"kind"`
	Label string   `json:"label,omitempty"`

	// Decl is the field the transition initialises, if any.
	Decl string `json:"decl,omitempty"`
}

func (e Edge) String() string {
	s := fmt.Sprintf("%d -%s-> %d", e.From, e.Kind, e.To)
	if e.Label != "" {
		s += " " + e.Label
	}
	return s
}

// Terminal reports whether the edge ends the mission.
func (e Edge) Terminal() bool {
	return e.Kind == Done || e.Kind == Failed
}

// Edges finds every transition in the program's state bodies.
//
// The result is sorted by source state and then by target, and it has
// no duplicates.
func Edges(p *core.Program) []Edge {
	seen := make(map[Edge]bool)
	acc := make([]Edge, 0, 2*len(p.States))
	add := func(e Edge) {
		if !seen[e] {
			seen[e] = true
			acc = append(acc, e)
		}
	}
	for _, s := range p.States {
		core.WalkStmts(s.Body, func(c *core.Cursor) {
			if c.InClosure() {
				return
			}
			switch x := c.Node().(type) {
			case *core.Goto:
				e := Edge{From: s.Index, To: x.Target, Decl: x.Decl, Label: x.Label}
				_, awaited := c.Parent().(*core.Await)
				switch {
				case awaited:
					e.Kind = Await
				case x.Label != "":
					e.Kind = Continue
					if l, have := p.Loops[x.Label]; have && l.Break == x.Target {
						e.Kind = Break
					}
				case x.Yield:
					e.Kind = Yield
				default:
					e.Kind = Next
				}
				add(e)
			case *core.Finish:
				e := Edge{From: s.Index, To: -1, Kind: Done}
				if x.Failed {
					e.Kind = Failed
				}
				add(e)
			}
		})
	}
	sort.SliceStable(acc, func(i, j int) bool {
		if acc[i].From != acc[j].From {
			return acc[i].From < acc[j].From
		}
		return acc[i].To < acc[j].To
	})
	return acc
}

// Reachable returns the indexes of the states that can run, starting
// from state 0.
func Reachable(p *core.Program, edges []Edge) map[int]bool {
	if edges == nil {
		edges = Edges(p)
	}
	out := make(map[int][]int)
	for _, e := range edges {
		if !e.Terminal() {
			out[e.From] = append(out[e.From], e.To)
		}
	}
	seen := make(map[int]bool)
	if len(p.States) == 0 {
		return seen
	}
	todo := []int{0}
	for 0 < len(todo) {
		i := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if seen[i] {
			continue
		}
		seen[i] = true
		todo = append(todo, out[i]...)
	}
	return seen
}
