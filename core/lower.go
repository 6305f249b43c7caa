package core

import (
	"fmt"
	"go/token"
)

// lowerer rewrites the statement lists that the partitioner walks:
// block initialisers become a declaration plus a block that assigns
// the block's value, and sub-mission calls become a spawned handle
// plus a suspending loop that awaits it.
type lowerer struct {
	proc  *Procedure
	procs map[string]*Procedure
	ds    *Diagnostics
	used  map[string]bool
	count map[string]int
	subs  []string
}

func newLowerer(p *Procedure, procs map[string]*Procedure, ds *Diagnostics) *lowerer {
	l := &lowerer{
		proc:  p,
		procs: procs,
		ds:    ds,
		used:  make(map[string]bool),
		count: make(map[string]int),
	}
	for _, x := range p.Params {
		l.used[x.Name] = true
	}
	WalkStmts(p.Body, func(c *Cursor) {
		switch vv := c.Node().(type) {
		case *Let:
			for _, b := range vv.Names {
				l.used[b.Name] = true
			}
		case *Loop:
			l.used[vv.Label] = true
		case *While:
			l.used[vv.Label] = true
		}
	})
	return l
}

// fresh returns a name with the given prefix that isn't used by the
// procedure.  Names are numbered in order of creation.
func (l *lowerer) fresh(prefix string) string {
	for {
		l.count[prefix]++
		name := fmt.Sprintf("%s%d", prefix, l.count[prefix])
		if !l.used[name] {
			l.used[name] = true
			return name
		}
	}
}

func (l *lowerer) errorf(path, format string, args ...interface{}) {
	l.ds.Errorf(l.proc.Name, path, format, args...)
}

func suspending(x Expr) (*Loop, bool) {
	loop, is := x.(*Loop)
	return loop, is && loop.Suspend
}

func (l *lowerer) lower(ss []Stmt) []Stmt {
	acc := make([]Stmt, 0, len(ss))
	for _, s := range ss {
		switch vv := s.(type) {
		case *Let:
			switch init := vv.Init.(type) {
			case *Block:
				acc = append(acc, l.blockInit(vv, init)...)
			case *Submission:
				handle, loop := l.submission(init)
				if handle == nil {
					continue
				}
				vv.Init = loop
				acc = append(acc, handle, vv)
			case *Loop:
				l.loop(init)
				acc = append(acc, vv)
			default:
				acc = append(acc, vv)
			}
		case *ExprStmt:
			acc = append(acc, l.exprStmt(vv)...)
		default:
			acc = append(acc, s)
		}
	}
	return acc
}

func (l *lowerer) exprStmt(s *ExprStmt) []Stmt {
	switch x := s.X.(type) {
	case *Block:
		x.Stmts = l.lower(x.Stmts)
	case *Loop:
		l.loop(x)
	case *Submission:
		handle, loop := l.submission(x)
		if handle == nil {
			return nil
		}
		s.X = loop
		return []Stmt{handle, s}
	case *Assign:
		if x.Op != token.ASSIGN {
			break
		}
		if _, is := x.Target.(*Ident); !is {
			break
		}
		switch v := x.Value.(type) {
		case *Submission:
			handle, loop := l.submission(v)
			if handle == nil {
				return nil
			}
			x.Value = loop
			return []Stmt{handle, s}
		case *Loop:
			l.loop(v)
		}
	}
	return []Stmt{s}
}

func (l *lowerer) loop(x *Loop) {
	if !x.Suspend {
		return
	}
	if x.Label == "" {
		x.Label = l.fresh("loop")
	}
	x.Body.Stmts = l.lower(x.Body.Stmts)
}

// blockInit turns
//
//	let x T = { ss; tail }
//
// into
//
//	let x T
//	{ ss; x = tail }
func (l *lowerer) blockInit(s *Let, b *Block) []Stmt {
	decl := &Let{At: s.At, Names: s.Names, Types: s.Types}

	if len(b.Stmts) == 0 {
		l.errorf(b.Pos(), "block initialising %s is empty", names(s))
		return []Stmt{decl}
	}

	last, is := b.Stmts[len(b.Stmts)-1].(*ExprStmt)
	if !is || !isValue(last.X) {
		l.errorf(b.Pos(), "block initialising %s has no final value", names(s))
		return []Stmt{decl}
	}

	var target Expr
	if len(s.Names) == 1 {
		target = &Ident{Name: s.Names[0].Name}
	} else {
		t := &Tuple{}
		for _, n := range s.Names {
			t.Elems = append(t.Elems, &Ident{Name: n.Name})
		}
		target = t
	}
	last.X = &Assign{Op: token.ASSIGN, Target: target, Value: last.X}

	b.Stmts = l.lower(b.Stmts)
	return []Stmt{decl, &ExprStmt{At: b.At, X: b}}
}

func names(s *Let) string {
	acc := ""
	for i, b := range s.Names {
		if 0 < i {
			acc += ", "
		}
		acc += b.Name
	}
	return acc
}

// isValue reports whether x can produce a value.
func isValue(x Expr) bool {
	switch vv := x.(type) {
	case *Assign, *Goto, *Finish, *Break, *Continue, *Return, *Fail, *While, *Await, *Spawn:
		return false
	case *Loop:
		return true
	case *If:
		return vv.Else != nil
	case nil:
		return false
	}
	return true
}

// submission returns the handle declaration and the suspending loop
// that awaits it.
func (l *lowerer) submission(x *Submission) (*Let, *Loop) {
	child, have := l.procs[x.Proc]
	if !have {
		l.errorf(x.Pos(), "unknown procedure %s", x.Proc)
		return nil, nil
	}

	ok := true
	if want := len(child.InitParams()); want != len(x.Args) {
		l.errorf(x.Pos(), "%s takes %d arguments, not %d", x.Proc, want, len(x.Args))
		ok = false
	}

	parent := make(map[string]*Param)
	for _, p := range l.proc.TickParams() {
		parent[p.Name] = p
	}
	for _, p := range child.TickParams() {
		q, have := parent[p.Name]
		if !have {
			l.errorf(x.Pos(), "%s needs tick parameter %s, which %s doesn't have", x.Proc, p.Name, l.proc.Name)
			ok = false
			continue
		}
		if q.Type != p.Type {
			l.errorf(x.Pos(), "tick parameter %s is %s in %s but %s in %s", p.Name, p.Type, x.Proc, q.Type, l.proc.Name)
			ok = false
		}
	}
	if !ok {
		return nil, nil
	}

	name := l.fresh("sub")
	l.subs = append(l.subs, x.Proc)

	handle := &Let{
		At:    x.At,
		Names: []Binding{{Name: name, Mut: true}},
		Types: []string{""},
		Init:  &Spawn{At: x.At, Proc: x.Proc, Args: x.Args},
	}
	loop := &Loop{
		At:      x.At,
		Label:   name,
		Suspend: true,
		Body: &Block{
			At: x.At,
			Stmts: []Stmt{
				&ExprStmt{At: x.At, X: &Await{At: x.At, Mission: name, Label: name}},
			},
		},
	}
	return handle, loop
}
