package core

import (
	"context"
	"go/token"
	"log"
	"sort"
)

// Verbose turns on compilation logging.
var Verbose = false

func logf(format string, args ...interface{}) {
	if Verbose {
		log.Printf(format, args...)
	}
}

// CompileOptions controls Compile.
type CompileOptions struct {
	// Interpreters compile opaque expressions.  When nil,
	// DefaultInterpreters are used.
	Interpreters InterpretersMap

	// SkipOpaque leaves opaque expressions uncompiled.  Code
	// generation uses this switch since it rejects them anyway.
	SkipOpaque bool
}

// Compile turns procedures into Programs.
//
// Compilation takes ownership of the procedures' bodies: statements
// are rewritten in place and moved into states, so a Procedure can be
// compiled only once.
//
// Every problem found is reported.  The returned error, if any, is a
// *Diagnostics.  Compile does no I/O except what interpreters do
// when compiling opaque expressions, and its output depends only on
// its input.
func Compile(ctx context.Context, procs []*Procedure, opts *CompileOptions) (*Unit, error) {
	if opts == nil {
		opts = &CompileOptions{}
	}
	interpreters := opts.Interpreters
	if interpreters == nil {
		interpreters = DefaultInterpreters
	}

	ds := NewDiagnostics()

	byName := make(map[string]*Procedure, len(procs))
	for _, p := range procs {
		if !token.IsIdentifier(p.Name) {
			ds.Errorf(p.Name, "name", "procedure name %q isn't an identifier", p.Name)
		}
		if _, dup := byName[p.Name]; dup {
			ds.Errorf(p.Name, "name", "procedure %s is defined twice", p.Name)
			continue
		}
		byName[p.Name] = p
	}

	u := &Unit{
		Programs: make(map[string]*Program, len(procs)),
		Order:    make([]string, 0, len(procs)),
	}

	for _, p := range procs {
		if _, have := u.Programs[p.Name]; have {
			continue
		}
		prog := compileProcedure(p, byName, ds)
		if !opts.SkipOpaque {
			compileOpaque(ctx, prog, interpreters, ds)
		}
		u.Programs[p.Name] = prog
		u.Order = append(u.Order, p.Name)
		logf("compiled %s: %d states, %d loops, %d fields", p.Name, len(prog.States), len(prog.Loops), len(prog.Fields))
	}

	if err := ds.Err(); err != nil {
		return nil, err
	}
	return u, nil
}

// CompileProcedure compiles a single procedure that calls no
// sub-missions other than itself.
func CompileProcedure(ctx context.Context, p *Procedure, opts *CompileOptions) (*Program, error) {
	u, err := Compile(ctx, []*Procedure{p}, opts)
	if err != nil {
		return nil, err
	}
	return u.Programs[p.Name], nil
}

func compileProcedure(p *Procedure, procs map[string]*Procedure, ds *Diagnostics) *Program {
	l := newLowerer(p, procs, ds)
	p.Body = l.lower(p.Body)

	t := newTracker(p, ds)
	pt := newPartitioner(t)
	pt.seq(p.Body)
	pt.finish()

	r := &rewriter{proc: p, ds: ds, loops: pt.loops}
	for _, s := range pt.states {
		r.rewrite(s)
	}

	k := &checker{proc: p, ds: ds, fields: t.byName, tick: t.tick}
	for _, s := range pt.states {
		k.check(s)
	}

	subs := make(map[string]bool)
	for _, s := range l.subs {
		subs[s] = true
	}
	prog := &Program{
		Proc:   p,
		Name:   p.Name,
		States: pt.states,
		Loops:  pt.loops,
		Fields: t.fields,
		Subs:   make([]string, 0, len(subs)),
	}
	for s := range subs {
		prog.Subs = append(prog.Subs, s)
	}
	sort.Strings(prog.Subs)

	return prog
}

func compileOpaque(ctx context.Context, prog *Program, interpreters InterpretersMap, ds *Diagnostics) {
	for _, s := range prog.States {
		WalkStmts(s.Body, func(c *Cursor) {
			x, is := c.Node().(*Opaque)
			if !is {
				return
			}
			name := InterpreterFor(prog.Proc, x)
			i, err := interpreters.Find(name)
			if err != nil {
				ds.Errorf(prog.Name, c.Pos(), "%v", err)
				return
			}
			if x.Compiled, err = i.Compile(ctx, x.Source); err != nil {
				ds.Errorf(prog.Name, c.Pos(), "compiling %s code: %v", name, err)
			}
		})
	}
}
