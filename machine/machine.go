// Package machine interprets compiled Programs.
//
// A Machine is a mission: each Step runs the current state's body,
// follows fall-through transitions within the same tick, and stops at
// the first yielding transition or when the mission finishes.
// Machines can be snapshotted between steps and restored later.
package machine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/mission"
)

// Tick holds the tick parameters for one step.
type Tick map[string]interface{}

// Env holds host values and functions that procedures can refer to
// by name.  Functions are called by reflection.  A function whose
// last result is a non-nil error fails the mission.
type Env map[string]interface{}

// Options configures Machines.
type Options struct {
	Env Env

	// Types names host types that declarations can use, as in
	// "Vec3" or "geo.Point".
	Types map[string]reflect.Type

	// Interpreters run opaque expressions.  When nil,
	// core.DefaultInterpreters are used.
	Interpreters core.InterpretersMap

	// Context is given to interpreters.
	Context context.Context

	// Trace logs every transition.
	Trace bool
}

var DefaultOptions = &Options{}

// frame is the live state of a Machine between steps.
type frame struct {
	State  int
	Fields map[string]interface{}
}

// Machine runs one mission of a Program.
//
// A Machine is not safe for concurrent use.  See mission.Slot.
type Machine struct {
	unit  *core.Unit
	prog  *core.Program
	opts  *Options
	types *types

	fieldTypes map[string]reflect.Type
	tickTypes  map[string]reflect.Type
	result     reflect.Type

	// cur is taken at the start of Step and replaced before it
	// returns.  It stays nil once the mission has finished.
	cur *frame
}

// HostError reports that a host function returned an error.
type HostError struct {
	Func string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %v", e.Func, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

var ErrMissingTick = errors.New("missing tick parameter")

func newMachine(u *core.Unit, proc string, opts *Options) (*Machine, error) {
	if opts == nil {
		opts = DefaultOptions
	}
	p, err := u.Program(proc)
	if err != nil {
		return nil, err
	}
	m := &Machine{
		unit:       u,
		prog:       p,
		opts:       opts,
		types:      newTypes(opts.Types),
		fieldTypes: make(map[string]reflect.Type, len(p.Fields)),
		tickTypes:  make(map[string]reflect.Type),
	}
	for _, f := range p.Fields {
		m.fieldTypes[f.Name] = m.types.lookup(f.Type)
	}
	for _, x := range p.Proc.TickParams() {
		m.tickTypes[x.Name] = m.types.lookup(x.Type)
	}
	m.result = m.types.lookup(p.Proc.Result)
	return m, nil
}

// New starts a mission of the named procedure.  The arguments are the
// procedure's non-tick parameters.
func New(u *core.Unit, proc string, args map[string]interface{}, opts *Options) (*Machine, error) {
	m, err := newMachine(u, proc, opts)
	if err != nil {
		return nil, err
	}

	f := &frame{Fields: make(map[string]interface{}, len(m.prog.Fields))}
	for _, p := range m.prog.Proc.InitParams() {
		x, have := args[p.Name]
		if !have {
			return nil, fmt.Errorf("%s: missing argument %s", proc, p.Name)
		}
		v, err := coerce(x, m.fieldTypes[p.Name])
		if err != nil {
			return nil, fmt.Errorf("%s: argument %s: %w", proc, p.Name, err)
		}
		f.Fields[p.Name] = v
	}
	for name := range args {
		if _, have := f.Fields[name]; !have {
			return nil, fmt.Errorf("%s: unknown argument %s", proc, name)
		}
	}
	m.enter(f, 0)
	m.cur = f
	return m, nil
}

// Program returns the Program the Machine runs.
func (m *Machine) Program() *core.Program {
	return m.prog
}

// Finished reports whether the mission has reported a terminal
// result.
func (m *Machine) Finished() bool {
	return m.cur == nil
}

// State returns the name of the current state, or "" when the mission
// is finished.
func (m *Machine) State() string {
	if m.cur == nil {
		return ""
	}
	return m.prog.States[m.cur.State].Name
}

// Field returns the current value of a field.
func (m *Machine) Field(name string) (interface{}, bool) {
	if m.cur == nil {
		return nil, false
	}
	x, have := m.cur.Fields[name]
	return x, have
}

func (m *Machine) ctx() context.Context {
	if m.opts.Context != nil {
		return m.opts.Context
	}
	return context.Background()
}

func (m *Machine) interpreters() core.InterpretersMap {
	if m.opts.Interpreters != nil {
		return m.opts.Interpreters
	}
	return core.DefaultInterpreters
}

func (m *Machine) tracef(format string, args ...interface{}) {
	if m.opts.Trace {
		log.Printf("%s "+format, append([]interface{}{m.prog.Name}, args...)...)
	}
}

// enter moves f to the given state.  Fields the state doesn't have
// are dropped, and fields it has but f lacks get zero values.
func (m *Machine) enter(f *frame, i int) {
	s := m.prog.States[i]
	fields := make(map[string]interface{}, len(s.Fields))
	for _, x := range s.Fields {
		v, have := f.Fields[x.Name]
		if !have {
			v = zero(m.fieldTypes[x.Name])
		}
		fields[x.Name] = v
	}
	f.State = i
	f.Fields = fields
}

func (m *Machine) ticks(w Tick) (Tick, error) {
	acc := make(Tick, len(m.tickTypes))
	for name, t := range m.tickTypes {
		x, have := w[name]
		if !have {
			return nil, fmt.Errorf("%w %s", ErrMissingTick, name)
		}
		v, err := coerce(x, t)
		if err != nil {
			return nil, fmt.Errorf("tick parameter %s: %w", name, err)
		}
		acc[name] = v
	}
	return acc, nil
}

func (m *Machine) fail(err error) mission.Result[interface{}] {
	m.tracef("failed: %v", err)
	return mission.Fail[interface{}](fmt.Errorf("%s: %w", m.prog.Name, err))
}

// Step runs the mission until its next yield.
//
// After Step reports Done or Failed, it reports Outdated without
// running anything.
func (m *Machine) Step(w Tick, out *mission.Outbox) (result mission.Result[interface{}]) {
	f := m.cur
	m.cur = nil
	if f == nil {
		return mission.Stale[interface{}]()
	}

	defer func() {
		if x := recover(); x != nil {
			m.cur = nil
			result = m.fail(fmt.Errorf("panic: %v", x))
		}
	}()

	tick, err := m.ticks(w)
	if err != nil {
		return m.fail(err)
	}

	r := &run{m: m, f: f, world: w, tick: tick, out: out}
	for {
		s := m.prog.States[f.State]
		fl, err := r.state(s)
		if err != nil {
			return m.fail(fmt.Errorf("%s: %w", s.Name, err))
		}

		switch fl.kind {
		case flowGoto:
			g := fl.g
			m.tracef("%s -> State%d yield=%v", s.Name, g.Target, g.Yield)
			if g.Target < 0 || len(m.prog.States) <= g.Target {
				return m.fail(&core.UnknownState{Proc: m.prog.Name, State: fmt.Sprint(g.Target)})
			}
			m.enter(f, g.Target)
			if g.Decl != "" {
				v, err := coerce(fl.value, m.fieldTypes[g.Decl])
				if err != nil {
					return m.fail(fmt.Errorf("%s: %w", g.Decl, err))
				}
				f.Fields[g.Decl] = v
			}
			if g.Yield {
				m.cur = f
				return mission.Pending[interface{}]()
			}

		case flowFinish:
			if fl.failed {
				return m.fail(reason(fl.value))
			}
			v, err := coerce(fl.value, m.result)
			if err != nil {
				return m.fail(fmt.Errorf("result: %w", err))
			}
			m.tracef("%s done %v", s.Name, v)
			return mission.Complete(v)

		default:
			return m.fail(fmt.Errorf("%s: %s escaped its loop", s.Name, fl.kind))
		}
	}
}

func reason(x interface{}) error {
	return mission.Reason(settle(x))
}
