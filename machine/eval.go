package machine

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"reflect"
	"strings"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/match"
	"github.com/Mubelotix/minecraft-bot/mission"
)

type flowKind int

const (
	flowBreak flowKind = iota
	flowContinue
	flowReturn
	flowGoto
	flowFinish
)

var flowNames = []string{"break", "continue", "return", "goto", "finish"}

func (k flowKind) String() string {
	return flowNames[k]
}

// flow is a control transfer in progress.
type flow struct {
	kind   flowKind
	label  string
	value  interface{}
	g      *core.Goto
	failed bool
}

type local struct {
	v interface{}
	t reflect.Type
}

// scope holds the names declared inside a state's nested constructs.
type scope struct {
	vars map[string]*local
	up   *scope
}

func (s *scope) child() *scope {
	return &scope{up: s}
}

func (s *scope) find(name string) *local {
	for ; s != nil; s = s.up {
		if l, have := s.vars[name]; have {
			return l
		}
	}
	return nil
}

func (s *scope) bind(name string, v interface{}, t reflect.Type) {
	if s.vars == nil {
		s.vars = make(map[string]*local, 4)
	}
	s.vars[name] = &local{v: v, t: t}
}

type closure struct {
	x  *core.Closure
	sc *scope
}

type builtin string

type typeName struct {
	t reflect.Type
}

// run is one Step in progress.
type run struct {
	m     *Machine
	f     *frame
	world Tick
	tick  Tick
	out   *mission.Outbox
}

func (r *run) state(s *core.State) (*flow, error) {
	sc := &scope{}
	for _, x := range s.Body {
		fl, err := r.stmt(sc, x, true)
		if err != nil {
			return nil, err
		}
		if fl != nil {
			return fl, nil
		}
	}
	return nil, errors.New("body ended without a transition")
}

// stmt executes a statement.  Declarations at the top of a state
// body set fields; others bind names in the scope.
func (r *run) stmt(sc *scope, s core.Stmt, top bool) (*flow, error) {
	switch vv := s.(type) {
	case *core.Let:
		return r.let(sc, vv, top)
	case *core.ExprStmt:
		_, fl, err := r.eval(sc, vv.X)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", vv.Pos(), err)
		}
		return fl, nil
	default:
		return nil, fmt.Errorf("unsupported statement %T", s)
	}
}

func (r *run) let(sc *scope, x *core.Let, top bool) (*flow, error) {
	vals := make([]interface{}, len(x.Names))
	switch init := x.Init.(type) {
	case nil:
	case *core.Tuple:
		if len(init.Elems) != len(x.Names) {
			return nil, fmt.Errorf("%s: %d names but %d values", x.Pos(), len(x.Names), len(init.Elems))
		}
		for i, e := range init.Elems {
			v, fl, err := r.eval(sc, e)
			if err != nil || fl != nil {
				return fl, err
			}
			vals[i] = v
		}
	default:
		v, fl, err := r.eval(sc, init)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", x.Pos(), err)
		}
		if fl != nil {
			return fl, nil
		}
		if 1 < len(x.Names) {
			vs, is := v.(multi)
			if !is || len(vs) != len(x.Names) {
				return nil, fmt.Errorf("%s: %d names but one value", x.Pos(), len(x.Names))
			}
			copy(vals, vs)
		} else {
			vals[0] = v
		}
	}

	for i, b := range x.Names {
		var t reflect.Type
		if top {
			t = r.m.fieldTypes[b.Name]
		} else if i < len(x.Types) {
			t = r.m.types.lookup(x.Types[i])
		}
		v, err := coerce(vals[i], t)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", x.Pos(), b.Name, err)
		}
		if top {
			r.f.Fields[b.Name] = v
		} else {
			sc.bind(b.Name, v, t)
		}
	}
	return nil, nil
}

// block runs statements in sc and returns the value of the last one.
func (r *run) block(sc *scope, b *core.Block) (interface{}, *flow, error) {
	if b == nil {
		return nil, nil, nil
	}
	for i, s := range b.Stmts {
		if x, is := s.(*core.ExprStmt); is && i == len(b.Stmts)-1 {
			v, fl, err := r.eval(sc, x.X)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", x.Pos(), err)
			}
			return v, fl, nil
		}
		fl, err := r.stmt(sc, s, false)
		if err != nil || fl != nil {
			return nil, fl, err
		}
	}
	return nil, nil, nil
}

func (r *run) evals(sc *scope, xs []core.Expr) ([]interface{}, *flow, error) {
	acc := make([]interface{}, 0, len(xs))
	for _, x := range xs {
		v, fl, err := r.eval(sc, x)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		acc = append(acc, v)
	}
	if len(acc) == 1 {
		if vs, is := acc[0].(multi); is {
			return vs, nil, nil
		}
	}
	return acc, nil, nil
}

func (r *run) eval(sc *scope, x core.Expr) (interface{}, *flow, error) {
	switch vv := x.(type) {
	case nil:
		return nil, nil, nil

	case *core.Ident:
		v, err := r.lookup(sc, vv.Name)
		return v, nil, err

	case *core.Lit:
		v, err := literal(vv.Kind, vv.Value)
		return v, nil, err

	case *core.Paren:
		return r.eval(sc, vv.X)

	case *core.Binary:
		a, fl, err := r.eval(sc, vv.X)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		if vv.Op == token.LAND || vv.Op == token.LOR {
			ta, err := truth(a)
			if err != nil {
				return nil, nil, err
			}
			if ta == (vv.Op == token.LOR) {
				return ta, nil, nil
			}
			b, fl, err := r.eval(sc, vv.Y)
			if err != nil || fl != nil {
				return nil, fl, err
			}
			tb, err := truth(b)
			return tb, nil, err
		}
		b, fl, err := r.eval(sc, vv.Y)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		v, err := binary(vv.Op, a, b)
		return v, nil, err

	case *core.Unary:
		a, fl, err := r.eval(sc, vv.X)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		v, err := unary(vv.Op, a)
		return v, nil, err

	case *core.Call:
		return r.call(sc, vv)

	case *core.Selector:
		a, fl, err := r.eval(sc, vv.X)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		v, err := selector(a, vv.Sel)
		return v, nil, err

	case *core.Index:
		a, fl, err := r.eval(sc, vv.X)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		i, fl, err := r.eval(sc, vv.Index)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		v, err := index(a, i)
		return v, nil, err

	case *core.Tuple:
		vs, fl, err := r.evals(sc, vv.Elems)
		return multi(vs), fl, err

	case *core.Assign:
		fl, err := r.assign(sc, vv)
		return nil, fl, err

	case *core.Block:
		return r.block(sc.child(), vv)

	case *core.Loop:
		return r.loop(sc, vv.Label, nil, vv.Body)

	case *core.While:
		return r.loop(sc, vv.Label, vv.Cond, vv.Body)

	case *core.If:
		c, fl, err := r.eval(sc, vv.Cond)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		b, err := truth(c)
		if err != nil {
			return nil, nil, err
		}
		if b {
			return r.block(sc.child(), vv.Then)
		}
		return r.eval(sc, vv.Else)

	case *core.Match:
		return r.match(sc, vv)

	case *core.Closure:
		return &closure{x: vv, sc: sc}, nil, nil

	case *core.Break:
		v, fl, err := r.eval(sc, vv.Value)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		return nil, &flow{kind: flowBreak, label: vv.Label, value: v}, nil

	case *core.Continue:
		return nil, &flow{kind: flowContinue, label: vv.Label}, nil

	case *core.Return:
		v, fl, err := r.eval(sc, vv.Value)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		return nil, &flow{kind: flowReturn, value: v}, nil

	case *core.Goto:
		v, fl, err := r.eval(sc, vv.Value)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		return nil, &flow{kind: flowGoto, g: vv, value: v}, nil

	case *core.Finish:
		v, fl, err := r.eval(sc, vv.Value)
		if err != nil || fl != nil {
			return nil, fl, err
		}
		return nil, &flow{kind: flowFinish, failed: vv.Failed, value: v}, nil

	case *core.Spawn:
		return r.spawn(sc, vv)

	case *core.Await:
		fl, err := r.await(vv)
		return nil, fl, err

	case *core.Opaque:
		v, err := r.opaque(sc, vv)
		return v, nil, err

	default:
		return nil, nil, fmt.Errorf("can't evaluate %T", x)
	}
}

func (r *run) lookup(sc *scope, name string) (interface{}, error) {
	if l := sc.find(name); l != nil {
		return l.v, nil
	}
	if v, have := r.f.Fields[name]; have {
		return v, nil
	}
	if v, have := r.tick[name]; have {
		return v, nil
	}
	if v, have := r.m.opts.Env[name]; have {
		return v, nil
	}
	switch name {
	case "true":
		return constant.MakeBool(true), nil
	case "false":
		return constant.MakeBool(false), nil
	case "nil":
		return nil, nil
	}
	if _, have := builtins[name]; have {
		return builtin(name), nil
	}
	if t := r.m.types.lookup(name); t != nil {
		return typeName{t}, nil
	}
	return nil, fmt.Errorf("undefined: %s", name)
}

// loop runs a loop that stays within the current state.
func (r *run) loop(sc *scope, label string, cond core.Expr, body *core.Block) (interface{}, *flow, error) {
	for {
		if cond != nil {
			c, fl, err := r.eval(sc, cond)
			if err != nil || fl != nil {
				return nil, fl, err
			}
			b, err := truth(c)
			if err != nil {
				return nil, nil, err
			}
			if !b {
				return nil, nil, nil
			}
		}
		_, fl, err := r.block(sc.child(), body)
		if err != nil {
			return nil, nil, err
		}
		if fl == nil {
			continue
		}
		mine := fl.label == "" || fl.label == label
		switch {
		case fl.kind == flowBreak && mine:
			return fl.value, nil, nil
		case fl.kind == flowContinue && mine:
			continue
		}
		return nil, fl, nil
	}
}

func (r *run) match(sc *scope, x *core.Match) (interface{}, *flow, error) {
	subject, fl, err := r.eval(sc, x.Subject)
	if err != nil || fl != nil {
		return nil, fl, err
	}
	subject = settle(subject)

	for _, a := range x.Arms {
		inner := sc.child()
		matched := false

		switch {
		case a.Pattern != nil:
			bss, err := match.Match(a.Pattern, generic(subject), match.NewBindings())
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", a.Pos(), err)
			}
			if 0 < len(bss) {
				matched = true
				for k, v := range bss[0] {
					inner.bind(strings.TrimPrefix(k, "?"), v, nil)
				}
			}
		case a.Default():
			matched = true
		default:
			for _, y := range a.Values {
				v, fl, err := r.eval(sc, y)
				if err != nil || fl != nil {
					return nil, fl, err
				}
				eq, err := binary(token.EQL, subject, v)
				if err != nil {
					return nil, nil, fmt.Errorf("%s: %w", a.Pos(), err)
				}
				if eq == true {
					matched = true
					break
				}
			}
		}

		if matched && a.Guard != nil {
			g, fl, err := r.eval(inner, a.Guard)
			if err != nil || fl != nil {
				return nil, fl, err
			}
			if matched, err = truth(g); err != nil {
				return nil, nil, err
			}
		}
		if matched {
			return r.block(inner, a.Body)
		}
	}
	return nil, nil, nil
}

// generic converts typed slices and maps to the generic forms that
// pattern matching understands.
func generic(x interface{}) interface{} {
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if _, is := x.([]byte); is {
			return x
		}
		acc := make([]interface{}, v.Len())
		for i := range acc {
			acc[i] = generic(v.Index(i).Interface())
		}
		return acc
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return x
		}
		acc := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			acc[iter.Key().String()] = generic(iter.Value().Interface())
		}
		return acc
	}
	return x
}

func selector(x interface{}, name string) (interface{}, error) {
	v := reflect.ValueOf(x)
	if !v.IsValid() {
		return nil, fmt.Errorf("nil has no %s", name)
	}
	if m := v.MethodByName(name); m.IsValid() {
		return m.Interface(), nil
	}
	if v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String {
		y := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !y.IsValid() {
			return zero(v.Type().Elem()), nil
		}
		return y.Interface(), nil
	}
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("nil has no %s", name)
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		if f := v.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	return nil, fmt.Errorf("%s has no %s", v.Type(), name)
}

func index(x, i interface{}) (interface{}, error) {
	if c, is := x.(constant.Value); is {
		x = settle(c)
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Map:
		k, err := coerce(i, v.Type().Key())
		if err != nil {
			return nil, err
		}
		y := v.MapIndex(valueOf(k, v.Type().Key()))
		if !y.IsValid() {
			return zero(v.Type().Elem()), nil
		}
		return y.Interface(), nil
	case reflect.Slice, reflect.Array, reflect.String:
		n, err := coerce(i, intType)
		if err != nil {
			return nil, err
		}
		j := n.(int)
		if j < 0 || v.Len() <= j {
			return nil, fmt.Errorf("index %d out of range [0:%d]", j, v.Len())
		}
		return v.Index(j).Interface(), nil
	}
	return nil, fmt.Errorf("can't index %T", x)
}

func (r *run) assign(sc *scope, x *core.Assign) (*flow, error) {
	if x.Op == token.ASSIGN {
		if t, is := x.Target.(*core.Tuple); is {
			var vs []interface{}
			if u, is := x.Value.(*core.Tuple); is {
				var fl *flow
				var err error
				if vs, fl, err = r.evals(sc, u.Elems); err != nil || fl != nil {
					return fl, err
				}
			} else {
				v, fl, err := r.eval(sc, x.Value)
				if err != nil || fl != nil {
					return fl, err
				}
				vs, _ = v.(multi)
			}
			if len(vs) != len(t.Elems) {
				return nil, fmt.Errorf("%d targets but %d values", len(t.Elems), len(vs))
			}
			for i, e := range t.Elems {
				if err := r.set(sc, e, vs[i]); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}

		v, fl, err := r.eval(sc, x.Value)
		if err != nil || fl != nil {
			return fl, err
		}
		return nil, r.set(sc, x.Target, v)
	}

	op := assignOp(x.Op)
	if op == token.ILLEGAL {
		return nil, fmt.Errorf("unsupported assignment %s", x.Op)
	}
	cur, fl, err := r.eval(sc, x.Target)
	if err != nil || fl != nil {
		return fl, err
	}
	var y interface{} = constant.MakeInt64(1)
	if x.Value != nil {
		if y, fl, err = r.eval(sc, x.Value); err != nil || fl != nil {
			return fl, err
		}
	}
	v, err := binary(op, cur, y)
	if err != nil {
		return nil, err
	}
	return nil, r.set(sc, x.Target, v)
}

func (r *run) set(sc *scope, target core.Expr, v interface{}) error {
	switch vv := target.(type) {
	case *core.Paren:
		return r.set(sc, vv.X, v)

	case *core.Ident:
		if vv.Name == "_" {
			return nil
		}
		if l := sc.find(vv.Name); l != nil {
			y, err := coerce(v, l.t)
			if err != nil {
				return fmt.Errorf("%s: %w", vv.Name, err)
			}
			l.v = y
			return nil
		}
		if t, have := r.m.fieldTypes[vv.Name]; have {
			y, err := coerce(v, t)
			if err != nil {
				return fmt.Errorf("%s: %w", vv.Name, err)
			}
			r.f.Fields[vv.Name] = y
			return nil
		}
		if _, have := r.m.tickTypes[vv.Name]; have {
			return fmt.Errorf("can't assign to tick parameter %s", vv.Name)
		}
		return fmt.Errorf("undefined: %s", vv.Name)

	case *core.Index:
		c, _, err := r.eval(sc, vv.X)
		if err != nil {
			return err
		}
		i, _, err := r.eval(sc, vv.Index)
		if err != nil {
			return err
		}
		cv := reflect.ValueOf(c)
		switch cv.Kind() {
		case reflect.Map:
			if cv.IsNil() {
				return errors.New("assignment to entry in nil map")
			}
			return setMapEntry(cv, i, v)
		case reflect.Slice:
			n, err := coerce(i, intType)
			if err != nil {
				return err
			}
			j := n.(int)
			if j < 0 || cv.Len() <= j {
				return fmt.Errorf("index %d out of range [0:%d]", j, cv.Len())
			}
			y, err := coerce(v, cv.Type().Elem())
			if err != nil {
				return err
			}
			setValue(cv.Index(j), y, cv.Type().Elem())
			return nil
		}
		return fmt.Errorf("can't assign to an element of %T", c)

	case *core.Selector:
		c, _, err := r.eval(sc, vv.X)
		if err != nil {
			return err
		}
		cv := reflect.ValueOf(c)
		if cv.Kind() == reflect.Map && cv.Type().Key().Kind() == reflect.String && !cv.IsNil() {
			return setMapEntry(cv, vv.Sel, v)
		}
		if cv.Kind() == reflect.Ptr && !cv.IsNil() && cv.Elem().Kind() == reflect.Struct {
			f := cv.Elem().FieldByName(vv.Sel)
			if f.IsValid() && f.CanSet() {
				y, err := coerce(v, f.Type())
				if err != nil {
					return err
				}
				setValue(f, y, f.Type())
				return nil
			}
		}
		return fmt.Errorf("can't assign to %s of %T", vv.Sel, c)

	case *core.Unary:
		if vv.Op != token.MUL {
			break
		}
		c, _, err := r.eval(sc, vv.X)
		if err != nil {
			return err
		}
		cv := reflect.ValueOf(c)
		if cv.Kind() != reflect.Ptr || cv.IsNil() {
			return fmt.Errorf("can't assign through %T", c)
		}
		y, err := coerce(v, cv.Type().Elem())
		if err != nil {
			return err
		}
		setValue(cv.Elem(), y, cv.Type().Elem())
		return nil
	}
	return fmt.Errorf("can't assign to %s", core.FormatExpr(target))
}

func setMapEntry(m reflect.Value, k, v interface{}) error {
	kt, vt := m.Type().Key(), m.Type().Elem()
	kk, err := coerce(k, kt)
	if err != nil {
		return err
	}
	vv, err := coerce(v, vt)
	if err != nil {
		return err
	}
	m.SetMapIndex(valueOf(kk, kt), valueOf(vv, vt))
	return nil
}

func (r *run) opaque(sc *scope, x *core.Opaque) (interface{}, error) {
	name := core.InterpreterFor(r.m.prog.Proc, x)
	i, err := r.m.interpreters().Find(name)
	if err != nil {
		return nil, err
	}
	ctx := r.m.ctx()
	compiled := x.Compiled
	if compiled == nil {
		if compiled, err = i.Compile(ctx, x.Source); err != nil {
			return nil, err
		}
	}
	env := &core.ScriptEnv{
		Bindings: r.visible(sc),
		Emit: func(y interface{}) {
			r.out.Emit(y)
		},
		Set: func(name string, y interface{}) error {
			return r.set(sc, &core.Ident{Name: name}, y)
		},
	}
	return i.Exec(ctx, env, x.Source, compiled)
}

// visible returns copies of the values an opaque expression can see.
func (r *run) visible(sc *scope) map[string]interface{} {
	acc := make(map[string]interface{}, len(r.tick)+len(r.f.Fields))
	for k, v := range r.tick {
		acc[k] = v
	}
	for k, v := range r.f.Fields {
		if _, is := v.(*Machine); is {
			continue
		}
		acc[k] = v
	}
	var scopes []*scope
	for s := sc; s != nil; s = s.up {
		scopes = append(scopes, s)
	}
	for i := len(scopes) - 1; 0 <= i; i-- {
		for k, l := range scopes[i].vars {
			if _, is := l.v.(*closure); !is {
				acc[k] = settle(l.v)
			}
		}
	}
	return acc
}

func (r *run) spawn(sc *scope, x *core.Spawn) (interface{}, *flow, error) {
	vs, fl, err := r.evals(sc, x.Args)
	if err != nil || fl != nil {
		return nil, fl, err
	}
	child, err := r.m.unit.Program(x.Proc)
	if err != nil {
		return nil, nil, err
	}
	ps := child.Proc.InitParams()
	if len(ps) != len(vs) {
		return nil, nil, fmt.Errorf("%s takes %d arguments, not %d", x.Proc, len(ps), len(vs))
	}
	args := make(map[string]interface{}, len(ps))
	for i, p := range ps {
		args[p.Name] = vs[i]
	}
	m, err := New(r.m.unit, x.Proc, args, r.m.opts)
	if err != nil {
		return nil, nil, err
	}
	r.m.tracef("spawned %s", x.Proc)
	return m, nil, nil
}

// await steps a sub-mission once.
func (r *run) await(x *core.Await) (*flow, error) {
	child, _ := r.f.Fields[x.Mission].(*Machine)
	if child == nil {
		return nil, fmt.Errorf("sub-mission %s isn't running", x.Mission)
	}
	res := child.Step(r.world, r.out)
	switch res.Status {
	case mission.InProgress:
		return nil, nil
	case mission.Done:
		r.f.Fields[x.Mission] = nil
		return &flow{kind: flowGoto, g: x.Exit, value: res.Value}, nil
	case mission.Failed:
		r.f.Fields[x.Mission] = nil
		return &flow{kind: flowFinish, failed: true, value: res.Err}, nil
	default:
		r.f.Fields[x.Mission] = nil
		return &flow{kind: flowFinish, failed: true, value: fmt.Errorf("%s: %w", x.Mission, mission.ErrOutdated)}, nil
	}
}
