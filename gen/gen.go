// Package gen writes compiled programs as Go source.
//
// Each program becomes a mission type with a constructor that takes
// the procedure's ordinary parameters and a Step method that takes
// its tick parameters:
//
//	m := NewLoopReturnMission("lorem", 1, 2)
//	r := m.Step(tickVar, out)
//
// Every state is a struct holding that state's fields.  The mission
// holds the current state, takes it at the start of Step, and puts
// the next one back before returning.
//
// Opaque expressions and structural match patterns only work in the
// interpreter (package machine).  Generating a program that uses
// them reports diagnostics.
package gen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"sort"
	"strings"
	"unicode"

	"github.com/Mubelotix/minecraft-bot/core"
)

// MissionPackage is the import path of the runtime package that
// generated code uses.
const MissionPackage = "github.com/Mubelotix/minecraft-bot/mission"

// Options control code generation.
type Options struct {
	// Package is the name of the generated package.
	Package string

	// Imports are extra import paths, for types and host functions
	// that procedures use.
	Imports []string

	// Generator names the program in the "Code generated" header.
	Generator string
}

// DefaultOptions are used when Generate is given nil options.
var DefaultOptions = &Options{
	Package:   "missions",
	Generator: "mbot gen",
}

// reserved names are used by generated code in every state.
var reserved = map[string]bool{
	"out":     true,
	"st":      true,
	"fmt":     true,
	"mission": true,
}

// Generate writes every program in the unit, in the unit's order, as
// one Go source file.  Problems come back as a *core.Diagnostics.
func Generate(u *core.Unit, opts *Options) ([]byte, error) {
	if opts == nil {
		opts = DefaultOptions
	}
	g := &generator{
		u:    u,
		opts: opts,
		ds:   core.NewDiagnostics(),
	}

	var body bytes.Buffer
	g.w = &body
	for _, name := range u.Order {
		p, err := u.Program(name)
		if err != nil {
			return nil, err
		}
		g.program(p)
	}
	if err := g.ds.Err(); err != nil {
		return nil, err
	}

	var file bytes.Buffer
	generator := opts.Generator
	if generator == "" {
		generator = DefaultOptions.Generator
	}
	pkg := opts.Package
	if pkg == "" {
		pkg = DefaultOptions.Package
	}
	fmt.Fprintf(&file, "// Code generated by %s. DO NOT EDIT.\n\n", generator)
	fmt.Fprintf(&file, "package %s\n\n", pkg)
	imports := append([]string{"fmt", MissionPackage}, opts.Imports...)
	sort.Strings(imports)
	file.WriteString("import (\n")
	for _, imp := range imports {
		fmt.Fprintf(&file, "\t%q\n", imp)
	}
	file.WriteString(")\n\n")
	file.Write(body.Bytes())

	src, err := format.Source(file.Bytes())
	if err != nil {
		return nil, fmt.Errorf("generated code doesn't parse: %w\n%s", err, file.Bytes())
	}
	return src, nil
}

type generator struct {
	u    *core.Unit
	opts *Options
	ds   *core.Diagnostics
	w    *bytes.Buffer

	prog   *core.Program
	state  *core.State
	result string

	// scope holds the fields that are live at this point of the
	// current state's body.
	scope map[string]bool

	// closures counts the closures being generated around the
	// current statement.
	closures int

	tmp int
}

func (g *generator) printf(format string, args ...interface{}) {
	fmt.Fprintf(g.w, format, args...)
}

func (g *generator) errorf(path, format string, args ...interface{}) {
	g.ds.Errorf(g.prog.Name, path, format, args...)
}

func (g *generator) fresh(prefix string) string {
	g.tmp++
	return fmt.Sprintf("%s%d", prefix, g.tmp)
}

// goName turns a procedure name into a Go identifier.
func goName(s string, exported bool) string {
	var b strings.Builder
	up := exported
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			up = true
			continue
		}
		if b.Len() == 0 && !exported {
			r = unicode.ToLower(r)
		} else if up {
			r = unicode.ToUpper(r)
		}
		up = false
		b.WriteRune(r)
	}
	return b.String()
}

// MissionType is the name of the generated type for a procedure.
func MissionType(proc string) string {
	return goName(proc, true) + "Mission"
}

func stateType(proc string, i int) string {
	return fmt.Sprintf("%sState%d", goName(proc, false), i)
}

func (g *generator) resultType(p *core.Program) string {
	if p.Proc.Result == "" {
		return "struct{}"
	}
	return p.Proc.Result
}

func (g *generator) fieldType(f *core.Field) string {
	if f.Mission != "" {
		return "*" + MissionType(f.Mission)
	}
	return f.Type
}

func params(ps []*core.Param) string {
	acc := make([]string, len(ps))
	for i, p := range ps {
		acc[i] = p.Name + " " + p.Type
	}
	return strings.Join(acc, ", ")
}

func paramNames(ps []*core.Param) string {
	acc := make([]string, len(ps))
	for i, p := range ps {
		acc[i] = p.Name
	}
	return strings.Join(acc, ", ")
}

func (g *generator) program(p *core.Program) {
	g.prog = p
	g.result = g.resultType(p)

	for _, param := range p.Proc.Params {
		if reserved[param.Name] {
			g.errorf("params", "%s is reserved in generated code", param.Name)
		}
	}
	for _, f := range p.Fields {
		if reserved[f.Name] {
			g.errorf("body", "%s is reserved in generated code", f.Name)
		}
	}

	typ := MissionType(p.Name)
	iface := goName(p.Name, false) + "State"
	ticks := p.Proc.TickParams()
	tickDecl := params(ticks)
	if tickDecl != "" {
		tickDecl += ", "
	}
	tickArgs := paramNames(ticks)
	if tickArgs != "" {
		tickArgs += ", "
	}

	g.printf("// %s runs the %s procedure one tick per Step.\n", typ, p.Name)
	if doc := strings.TrimSpace(p.Proc.Doc); doc != "" {
		g.printf("//\n")
		for _, line := range strings.Split(doc, "\n") {
			g.printf("// %s\n", strings.TrimRight(line, " \t"))
		}
	}
	g.printf("type %s struct {\n\tstate %s\n}\n\n", typ, iface)

	g.printf("type %s interface {\n", iface)
	g.printf("\tstep(%sout *mission.Outbox) (%s, bool, mission.Result[%s])\n}\n\n", tickDecl, iface, g.result)

	init := p.Proc.InitParams()
	g.printf("// New%s starts the mission in its first state.\n", typ)
	g.printf("func New%s(%s) *%s {\n", typ, params(init), typ)
	g.printf("\treturn &%s{state: &%s{", typ, stateType(p.Name, 0))
	for i, param := range init {
		if 0 < i {
			g.printf(", ")
		}
		g.printf("%s: %s", param.Name, param.Name)
	}
	g.printf("}}\n}\n\n")

	g.printf("// Finished reports whether the mission has ended.\n")
	g.printf("func (m *%s) Finished() bool {\n\treturn m.state == nil\n}\n\n", typ)

	g.printf("// Step runs the mission until it yields or ends.\n")
	g.printf("func (m *%s) Step(%sout *mission.Outbox) (r mission.Result[%s]) {\n", typ, tickDecl, g.result)
	g.printf("\ts := m.state\n\tm.state = nil\n")
	g.printf("\tif s == nil {\n\t\treturn mission.Stale[%s]()\n\t}\n", g.result)
	g.printf("\tdefer func() {\n\t\tif x := recover(); x != nil {\n")
	g.printf("\t\t\tm.state = nil\n\t\t\tr = mission.Fail[%s](fmt.Errorf(\"%s: %%v\", x))\n\t\t}\n\t}()\n", g.result, p.Name)
	g.printf("\tfor {\n\t\tnext, yield, res := s.step(%sout)\n", tickArgs)
	g.printf("\t\tswitch {\n\t\tcase next == nil:\n\t\t\treturn res\n")
	g.printf("\t\tcase yield:\n\t\t\tm.state = next\n\t\t\treturn mission.Pending[%s]()\n\t\t}\n", g.result)
	g.printf("\t\ts = next\n\t}\n}\n\n")

	for _, s := range p.States {
		g.stateCode(s, iface, tickDecl)
	}
}

func (g *generator) stateCode(s *core.State, iface, tickDecl string) {
	g.state = s
	g.scope = make(map[string]bool, len(s.Fields))
	g.tmp = 0

	name := stateType(g.prog.Name, s.Index)
	g.printf("type %s struct {\n", name)
	for _, f := range s.Fields {
		g.printf("\t%s %s\n", f.Name, g.fieldType(f))
	}
	g.printf("}\n\n")

	g.printf("func (st *%s) step(%sout *mission.Outbox) (%s, bool, mission.Result[%s]) {\n", name, tickDecl, iface, g.result)
	for _, f := range s.Fields {
		g.printf("%s := st.%s\n_ = %s\n", f.Name, f.Name, f.Name)
		g.scope[f.Name] = true
	}
	g.stmts(s.Body, true)
	if !returns(s.Body) {
		g.printf("panic(\"unreachable\")\n")
	}
	g.printf("}\n\n")
}

func (g *generator) stmts(ss []core.Stmt, top bool) {
	for _, s := range ss {
		g.stmt(s, top)
	}
}

func (g *generator) stmt(s core.Stmt, top bool) {
	switch vv := s.(type) {
	case *core.Let:
		g.let(vv, top)
	case *core.ExprStmt:
		g.exprStmt(vv.X, vv.Pos())
	default:
		g.errorf(g.path(s), "can't generate %T", s)
	}
}

func (g *generator) path(n core.Node) string {
	if p, is := n.(interface{ Pos() string }); is && p.Pos() != "" {
		return p.Pos()
	}
	return g.state.Name
}

func (g *generator) letType(x *core.Let, i int) string {
	name := x.Names[i].Name
	if f, have := g.prog.Field(name); have && f.Mission != "" {
		return g.fieldType(f)
	}
	if i < len(x.Types) {
		return x.Types[i]
	}
	return ""
}

func (g *generator) let(x *core.Let, top bool) {
	names := make([]string, len(x.Names))
	for i, b := range x.Names {
		names[i] = b.Name
		if reserved[b.Name] {
			g.errorf(x.Pos(), "%s is reserved in generated code", b.Name)
		}
	}

	simple := len(names) == 1 && x.Init != nil && !valued(x.Init)
	declared := top && g.scope[names[0]]
	if simple && !declared {
		t := g.letType(x, 0)
		if t == "" {
			g.printf("var %s = %s\n", names[0], g.expr(x.Init))
		} else {
			g.printf("var %s %s = %s\n", names[0], t, g.expr(x.Init))
		}
		g.printf("_ = %s\n", names[0])
		g.declare(names, top)
		return
	}

	for i, name := range names {
		if top && g.scope[name] {
			if x.Init == nil {
				g.printf("%s = *new(%s)\n", name, g.letType(x, i))
			}
			continue
		}
		t := g.letType(x, i)
		if t == "" {
			g.errorf(x.Pos(), "%s needs a type", name)
			t = "interface{}"
		}
		g.printf("var %s %s\n_ = %s\n", name, t, name)
	}
	g.declare(names, top)

	if x.Init == nil {
		return
	}
	target := strings.Join(names, ", ")
	if tuple, is := x.Init.(*core.Tuple); is {
		g.printf("%s = %s\n", target, g.exprs(tuple.Elems))
		return
	}
	g.tail(x.Init, func(v string) {
		g.printf("%s = %s\n", target, v)
	})
}

func (g *generator) declare(names []string, top bool) {
	if !top {
		return
	}
	for _, name := range names {
		g.scope[name] = true
	}
}

// returns reports whether the code generated for ss plainly ends
// with a return statement.
func returns(ss []core.Stmt) bool {
	if len(ss) == 0 {
		return false
	}
	last, is := ss[len(ss)-1].(*core.ExprStmt)
	if !is {
		return false
	}
	switch vv := last.X.(type) {
	case *core.Goto:
		return !valued(vv.Value)
	case *core.Finish:
		return !valued(vv.Value)
	case *core.Return:
		return !valued(vv.Value)
	}
	return value(last.X) && !valued(last.X)
}

// valued reports whether x is a construct whose value comes from its
// last statement.
func valued(x core.Expr) bool {
	switch vv := x.(type) {
	case *core.Block, *core.Match:
		return true
	case *core.If:
		return vv.Else != nil
	}
	return false
}

// tail generates x so that each value it can produce is handed to
// sink as Go source.
func (g *generator) tail(x core.Expr, sink func(string)) {
	switch vv := x.(type) {
	case *core.Block:
		g.printf("{\n")
		g.blockTail(vv, sink)
		g.printf("}\n")
	case *core.If:
		g.printf("if %s {\n", g.expr(vv.Cond))
		g.blockTail(vv.Then, sink)
		g.printf("}")
		switch e := vv.Else.(type) {
		case nil:
			g.printf("\n")
		case *core.If:
			g.printf(" else ")
			g.tail(e, sink)
		case *core.Block:
			g.printf(" else {\n")
			g.blockTail(e, sink)
			g.printf("}\n")
		}
	case *core.Match:
		g.match(vv, sink)
	default:
		sink(g.expr(x))
	}
}

func (g *generator) blockTail(b *core.Block, sink func(string)) {
	if b == nil || len(b.Stmts) == 0 {
		return
	}
	n := len(b.Stmts)
	g.stmts(b.Stmts[:n-1], false)
	if last, is := b.Stmts[n-1].(*core.ExprStmt); is && value(last.X) {
		g.tail(last.X, sink)
		return
	}
	g.stmt(b.Stmts[n-1], false)
}

// value reports whether x produces a value when used as the last
// statement of a block.
func value(x core.Expr) bool {
	switch vv := x.(type) {
	case *core.Assign, *core.Goto, *core.Finish, *core.Break, *core.Continue,
		*core.Return, *core.Fail, *core.While, *core.Await, *core.Loop:
		return false
	case *core.If:
		return vv.Else != nil
	case *core.Call:
		if f, is := vv.Fun.(*core.Ident); is && f.Name == "emit" {
			return false
		}
	}
	return true
}

func (g *generator) exprStmt(x core.Expr, path string) {
	switch vv := x.(type) {
	case *core.Goto:
		g.gotoState(vv)
	case *core.Finish:
		g.finish(vv)
	case *core.Await:
		g.await(vv)
	case *core.Assign:
		g.assign(vv)
	case *core.Call:
		g.printf("%s\n", g.expr(vv))
	case *core.Block:
		g.printf("{\n")
		g.stmts(vv.Stmts, false)
		g.printf("}\n")
	case *core.If:
		g.printf("if %s {\n", g.expr(vv.Cond))
		g.stmts(vv.Then.Stmts, false)
		g.printf("}")
		switch e := vv.Else.(type) {
		case nil:
			g.printf("\n")
		case *core.If:
			g.printf(" else ")
			g.exprStmt(e, path)
		case *core.Block:
			g.printf(" else {\n")
			g.stmts(e.Stmts, false)
			g.printf("}\n")
		}
	case *core.Match:
		g.match(vv, nil)
	case *core.Loop:
		if vv.Suspend {
			g.errorf(vv.Pos(), "loop %s is still suspending", vv.Label)
			return
		}
		g.label(vv.Label, vv.Body)
		g.printf("for {\n")
		g.stmts(vv.Body.Stmts, false)
		g.printf("}\n")
	case *core.While:
		g.label(vv.Label, vv.Body)
		g.printf("for %s {\n", g.expr(vv.Cond))
		g.stmts(vv.Body.Stmts, false)
		g.printf("}\n")
	case *core.Break:
		if vv.Value != nil {
			g.errorf(vv.Pos(), "break with a value only works in the interpreter")
		}
		g.printf("break %s\n", vv.Label)
	case *core.Continue:
		g.printf("continue %s\n", vv.Label)
	case *core.Return:
		if g.closures == 0 {
			g.errorf(vv.Pos(), "return outside of a closure")
			return
		}
		if vv.Value == nil {
			g.printf("return\n")
			return
		}
		g.tail(vv.Value, func(v string) {
			g.printf("return %s\n", v)
		})
	default:
		g.printf("_ = %s\n", g.expr(x))
	}
}

// label writes the label for an in-state loop if anything uses it.
func (g *generator) label(label string, body *core.Block) {
	if label == "" || body == nil {
		return
	}
	used := false
	core.WalkStmts(body.Stmts, func(c *core.Cursor) {
		if c.InClosure() {
			return
		}
		switch x := c.Node().(type) {
		case *core.Break:
			used = used || x.Label == label
		case *core.Continue:
			used = used || x.Label == label
		}
	})
	if used {
		g.printf("%s:\n", label)
	}
}

func (g *generator) assign(x *core.Assign) {
	target := g.expr(x.Target)
	if t, is := x.Target.(*core.Tuple); is {
		target = g.exprs(t.Elems)
	}
	switch x.Op {
	case token.INC, token.DEC:
		g.printf("%s%s\n", target, x.Op)
		return
	}
	if tuple, is := x.Value.(*core.Tuple); is {
		g.printf("%s %s %s\n", target, x.Op, g.exprs(tuple.Elems))
		return
	}
	g.tail(x.Value, func(v string) {
		g.printf("%s %s %s\n", target, x.Op, v)
	})
}

// match writes a match as an if-else chain, so that break and
// continue in its arms still refer to the enclosing loop.
func (g *generator) match(x *core.Match, sink func(string)) {
	subj := g.fresh("subj")
	g.printf("{\n%s := %s\n_ = %s\n", subj, g.expr(x.Subject), subj)

	body := func(b *core.Block) {
		if sink != nil {
			g.blockTail(b, sink)
		} else if b != nil {
			g.stmts(b.Stmts, false)
		}
	}

	first := true
	for _, a := range x.Arms {
		if a.Pattern != nil {
			g.errorf(a.Pos(), "pattern arms only work in the interpreter")
			continue
		}
		var conds []string
		for _, v := range a.Values {
			conds = append(conds, fmt.Sprintf("%s == %s", subj, g.expr(v)))
		}
		cond := strings.Join(conds, " || ")
		if a.Guard != nil {
			if cond != "" {
				cond = "(" + cond + ") && "
			}
			cond += g.expr(a.Guard)
		}

		if cond == "" {
			if first {
				g.printf("{\n")
			} else {
				g.printf(" else {\n")
			}
			body(a.Body)
			g.printf("}")
			first = false
			break
		}
		if first {
			g.printf("if %s {\n", cond)
		} else {
			g.printf(" else if %s {\n", cond)
		}
		body(a.Body)
		g.printf("}")
		first = false
	}
	g.printf("\n}\n")
}

// fields writes the struct literal for entering state i, carrying
// the live fields it keeps.
func (g *generator) fields(i int, decl, value string) string {
	target := g.prog.States[i]
	acc := make([]string, 0, len(target.Fields))
	for _, f := range target.Fields {
		switch {
		case f.Name == decl:
			acc = append(acc, f.Name+": "+value)
		case g.scope[f.Name]:
			acc = append(acc, f.Name+": "+f.Name)
		}
	}
	return fmt.Sprintf("&%s{%s}", stateType(g.prog.Name, i), strings.Join(acc, ", "))
}

func (g *generator) gotoState(x *core.Goto) {
	if g.closures != 0 {
		g.errorf(x.Pos(), "state transition inside a closure")
		return
	}
	if x.Decl == "" || x.Value == nil {
		g.printf("return %s, %t, mission.Result[%s]{}\n", g.fields(x.Target, "", ""), x.Yield, g.result)
		return
	}
	g.tail(x.Value, func(v string) {
		g.printf("return %s, %t, mission.Result[%s]{}\n", g.fields(x.Target, x.Decl, v), x.Yield, g.result)
	})
}

func (g *generator) finish(x *core.Finish) {
	if x.Failed {
		if x.Value == nil {
			g.printf("return nil, false, mission.Fail[%s](mission.Reason(nil))\n", g.result)
			return
		}
		g.tail(x.Value, func(v string) {
			g.printf("return nil, false, mission.Fail[%s](mission.Reason(%s))\n", g.result, v)
		})
		return
	}
	if x.Value == nil || g.prog.Proc.Result == "" {
		if x.Value != nil {
			g.exprStmt(x.Value, x.Pos())
		}
		g.printf("return nil, false, mission.Complete(%s{})\n", g.result)
		return
	}
	g.tail(x.Value, func(v string) {
		g.printf("return nil, false, mission.Complete[%s](%s)\n", g.result, v)
	})
}

func (g *generator) await(x *core.Await) {
	f, have := g.prog.Field(x.Mission)
	if !have || f.Mission == "" {
		g.errorf(x.Pos(), "%s isn't a sub-mission", x.Mission)
		return
	}
	child, err := g.u.Program(f.Mission)
	if err != nil {
		g.errorf(x.Pos(), "%s", err)
		return
	}
	res := x.Mission + "Result"
	args := paramNames(child.Proc.TickParams())
	if args != "" {
		args += ", "
	}
	g.printf("switch %s := %s.Step(%sout); %s.Status {\n", res, x.Mission, args, res)
	g.printf("case mission.InProgress:\n")
	g.printf("case mission.Done:\n%s = nil\n", x.Mission)
	if x.Exit != nil {
		value := ""
		if x.Exit.Decl != "" {
			value = res + ".Value"
		}
		g.printf("return %s, %t, mission.Result[%s]{}\n", g.fields(x.Exit.Target, x.Exit.Decl, value), x.Exit.Yield, g.result)
	}
	g.printf("case mission.Failed:\nreturn nil, false, mission.Fail[%s](%s.Err)\n", g.result, res)
	g.printf("default:\nreturn nil, false, mission.Fail[%s](fmt.Errorf(\"%s: %%w\", mission.ErrOutdated))\n}\n", g.result, x.Mission)
}

func (g *generator) exprs(xs []core.Expr) string {
	acc := make([]string, len(xs))
	for i, x := range xs {
		acc[i] = g.expr(x)
	}
	return strings.Join(acc, ", ")
}

var calls = map[string]string{
	"sprintf": "fmt.Sprintf",
	"errorf":  "fmt.Errorf",
	"ok":      "mission.OK",
	"err":     "mission.ErrText",
}

func (g *generator) operand(x core.Expr, prec int, right bool) string {
	if b, is := x.(*core.Binary); is {
		p := b.Op.Precedence()
		if p < prec || (right && p == prec) {
			return "(" + g.expr(x) + ")"
		}
	}
	return g.expr(x)
}

func (g *generator) expr(x core.Expr) string {
	switch vv := x.(type) {
	case nil:
		return "nil"
	case *core.Ident:
		return vv.Name
	case *core.Lit:
		return vv.Value
	case *core.Binary:
		p := vv.Op.Precedence()
		return g.operand(vv.X, p, false) + " " + vv.Op.String() + " " + g.operand(vv.Y, p, true)
	case *core.Unary:
		return vv.Op.String() + g.operand(vv.X, token.HighestPrec, false)
	case *core.Paren:
		return "(" + g.expr(vv.X) + ")"
	case *core.Selector:
		return g.expr(vv.X) + "." + vv.Sel
	case *core.Index:
		return g.expr(vv.X) + "[" + g.expr(vv.Index) + "]"
	case *core.Call:
		fun := g.expr(vv.Fun)
		if id, is := vv.Fun.(*core.Ident); is {
			if id.Name == "emit" {
				return "out.Emit(" + g.exprs(vv.Args) + ")"
			}
			if f, have := calls[id.Name]; have {
				fun = f
			}
		}
		return fun + "(" + g.exprs(vv.Args) + ")"
	case *core.Spawn:
		return "New" + MissionType(vv.Proc) + "(" + g.exprs(vv.Args) + ")"
	case *core.Closure:
		return g.closure(vv)
	case *core.Opaque:
		g.errorf(vv.Pos(), "%s code only works in the interpreter", vv.Interpreter)
	case *core.Block, *core.If, *core.Match:
		g.errorf(g.path(x), "%s can only produce a value as a statement or initialiser", core.FormatExpr(x))
	case *core.Loop:
		g.errorf(vv.Pos(), "loop values only work in the interpreter")
	default:
		g.errorf(g.path(x), "can't generate %s here", core.FormatExpr(x))
	}
	return "nil"
}

func (g *generator) closure(x *core.Closure) string {
	saved := g.w
	var b bytes.Buffer
	g.w = &b
	g.closures++
	defer func() {
		g.closures--
		g.w = saved
	}()

	g.printf("func(%s) %s {\n", params(x.Params), x.Result)
	if x.Result == "" {
		g.stmts(x.Body.Stmts, false)
	} else {
		g.blockTail(x.Body, func(v string) {
			g.printf("return %s\n", v)
		})
		if !returns(x.Body.Stmts) {
			g.printf("panic(\"missing return\")\n")
		}
	}
	g.printf("}")
	return b.String()
}
