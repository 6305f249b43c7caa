package core

import (
	"encoding/json"
	"fmt"
	"go/token"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jsccast/yaml"
)

type procDoc struct {
	Name        string        `json:"name" yaml:"name"`
	Doc         string        `json:"doc" yaml:"doc"`
	Params      []*Param      `json:"params" yaml:"params"`
	Result      string        `json:"result" yaml:"result"`
	Interpreter string        `json:"interpreter" yaml:"interpreter"`
	Body        []interface{} `json:"body" yaml:"body"`
}

type fileDoc struct {
	Procedures []*procDoc `json:"procedures" yaml:"procedures"`
}

// LoadProcedures parses a document holding either one procedure or a
// list of them under "procedures".
//
// The filename's extension picks the syntax: ".json" is JSON and
// anything else is YAML.  Problems are reported as *Diagnostics.
func LoadProcedures(bs []byte, filename string) ([]*Procedure, error) {
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		unmarshal = json.Unmarshal
	}

	var f fileDoc
	if err := unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	docs := f.Procedures
	if len(docs) == 0 {
		var d procDoc
		if err := unmarshal(bs, &d); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		docs = []*procDoc{&d}
	}

	ds := NewDiagnostics()
	acc := make([]*Procedure, 0, len(docs))
	for _, d := range docs {
		if d.Name == "" {
			ds.Errorf("", filename, "procedure without a name")
			continue
		}
		l := &loader{proc: d.Name, ds: ds}
		p := &Procedure{
			Name:        d.Name,
			Doc:         d.Doc,
			Params:      d.Params,
			Result:      d.Result,
			Interpreter: d.Interpreter,
			Body:        l.stmts("body", d.Body),
		}
		acc = append(acc, p)
	}
	if err := ds.Err(); err != nil {
		return nil, err
	}
	return acc, nil
}

// LoadProcedure is LoadProcedures for a document with exactly one
// procedure.
func LoadProcedure(bs []byte, filename string) (*Procedure, error) {
	ps, err := LoadProcedures(bs, filename)
	if err != nil {
		return nil, err
	}
	if len(ps) != 1 {
		return nil, fmt.Errorf("%s: expected one procedure, found %d", filename, len(ps))
	}
	return ps[0], nil
}

// constructKeys are the keys that introduce an expression form, in
// the order they are considered.
var constructKeys = []string{
	"block", "loop", "while", "if", "match",
	"break", "continue", "return", "fail",
	"mission", "js", "closure",
}

type loader struct {
	proc string
	ds   *Diagnostics
}

func (l *loader) errorf(path, format string, args ...interface{}) {
	l.ds.Errorf(l.proc, path, format, args...)
}

func (l *loader) stmts(path string, x interface{}) []Stmt {
	x = StringMaps(x)
	if x == nil {
		return nil
	}
	xs, is := x.([]interface{})
	if !is {
		l.errorf(path, "expected a list of statements, not %T", x)
		return nil
	}
	acc := make([]Stmt, 0, len(xs))
	for i, y := range xs {
		if s := l.stmt(fmt.Sprintf("%s[%d]", path, i), y); s != nil {
			acc = append(acc, s)
		}
	}
	return acc
}

func (l *loader) block(path string, x interface{}) *Block {
	return &Block{At: At{path}, Stmts: l.stmts(path, x)}
}

func (l *loader) stmt(path string, x interface{}) Stmt {
	switch vv := StringMaps(x).(type) {
	case string:
		return l.do(path, vv)
	case map[string]interface{}:
		if spec, have := vv["let"]; have {
			return l.let(path+".let", spec)
		}
		if src, have := vv["do"]; have {
			s, is := src.(string)
			if !is {
				l.errorf(path+".do", "expected a string, not %T", src)
				return nil
			}
			return l.do(path+".do", s)
		}
		e := l.construct(path, vv)
		if e == nil {
			return nil
		}
		return &ExprStmt{At: At{path}, X: e}
	default:
		l.errorf(path, "unsupported statement %T", x)
		return nil
	}
}

func (l *loader) do(path, src string) Stmt {
	e, err := ParseSimpleStmt(src)
	if err != nil {
		l.errorf(path, "%s: %v", src, err)
		return nil
	}
	return &ExprStmt{At: At{path}, X: e}
}

func (l *loader) let(path string, x interface{}) Stmt {
	m, is := x.(map[string]interface{})
	if !is {
		l.errorf(path, "let needs a map, not %T", x)
		return nil
	}

	s := &Let{At: At{path}}

	mut, _ := m["mut"].(bool)
	if name, have := m["name"]; have {
		if n, ok := l.name(path+".name", name); ok {
			s.Names = append(s.Names, Binding{Name: n, Mut: mut})
		}
	}
	if names, have := m["names"]; have {
		for _, n := range l.names(path+".names", names) {
			s.Names = append(s.Names, Binding{Name: n, Mut: mut})
		}
	}
	if len(s.Names) == 0 {
		l.errorf(path, "let without a name")
	}

	if typ, have := m["type"]; have {
		s.Types = append(s.Types, fmt.Sprint(typ))
	}
	if types, have := m["types"]; have {
		s.Types = append(s.Types, l.strings(path+".types", types)...)
	}
	if s.Types == nil {
		s.Types = make([]string, len(s.Names))
	}

	if v, have := m["value"]; have {
		s.Init = l.value(path+".value", v)
	} else if vs, have := m["values"]; have {
		s.Init = l.value(path+".values", vs)
	} else if hasConstruct(m) {
		s.Init = l.construct(path, m)
	}

	return s
}

func hasConstruct(m map[string]interface{}) bool {
	for _, k := range constructKeys {
		if _, have := m[k]; have {
			return true
		}
	}
	return false
}

// name checks a name in a let or a parameter list.  YAML reads y,
// n, yes, no, on and off as booleans, so those must be quoted.
func (l *loader) name(path string, x interface{}) (string, bool) {
	switch vv := x.(type) {
	case string:
		return vv, true
	case bool:
		l.errorf(path, "name %v is a YAML boolean; quote it", vv)
	default:
		l.errorf(path, "name must be a string, not %T", x)
	}
	return "", false
}

func (l *loader) names(path string, x interface{}) []string {
	switch vv := x.(type) {
	case string:
		return []string{vv}
	case []interface{}:
		acc := make([]string, 0, len(vv))
		for i, y := range vv {
			if n, ok := l.name(fmt.Sprintf("%s[%d]", path, i), y); ok {
				acc = append(acc, n)
			}
		}
		return acc
	default:
		l.errorf(path, "expected a list of names, not %T", x)
		return nil
	}
}

func (l *loader) strings(path string, x interface{}) []string {
	switch vv := x.(type) {
	case string:
		return []string{vv}
	case []interface{}:
		acc := make([]string, 0, len(vv))
		for _, y := range vv {
			acc = append(acc, fmt.Sprint(y))
		}
		return acc
	default:
		l.errorf(path, "expected a list of strings, not %T", x)
		return nil
	}
}

// value parses something in value position.
func (l *loader) value(path string, x interface{}) Expr {
	switch vv := StringMaps(x).(type) {
	case nil:
		return nil
	case string:
		e, err := ParseExpr(vv)
		if err != nil {
			l.errorf(path, "%s: %v", vv, err)
			return nil
		}
		return e
	case bool:
		return &Ident{Name: strconv.FormatBool(vv)}
	case int:
		return &Lit{Kind: token.INT, Value: strconv.Itoa(vv)}
	case int64:
		return &Lit{Kind: token.INT, Value: strconv.FormatInt(vv, 10)}
	case uint64:
		return &Lit{Kind: token.INT, Value: strconv.FormatUint(vv, 10)}
	case float64:
		if vv == math.Trunc(vv) && math.Abs(vv) < 1<<53 {
			return &Lit{Kind: token.INT, Value: strconv.FormatInt(int64(vv), 10)}
		}
		return &Lit{Kind: token.FLOAT, Value: strconv.FormatFloat(vv, 'g', -1, 64)}
	case []interface{}:
		t := &Tuple{Elems: make([]Expr, 0, len(vv))}
		for i, y := range vv {
			if e := l.value(fmt.Sprintf("%s[%d]", path, i), y); e != nil {
				t.Elems = append(t.Elems, e)
			}
		}
		return t
	case map[string]interface{}:
		return l.construct(path, vv)
	default:
		l.errorf(path, "unsupported value %T", x)
		return nil
	}
}

func (l *loader) label(path string, x interface{}) string {
	switch vv := x.(type) {
	case nil:
		return ""
	case string:
		return vv
	default:
		l.errorf(path, "label must be a string, not %T", x)
		return ""
	}
}

// construct parses the expression form introduced by one of
// constructKeys.
func (l *loader) construct(path string, m map[string]interface{}) Expr {
	at := At{path}

	if x, have := m["block"]; have {
		return l.block(path+".block", x)
	}

	if x, have := m["loop"]; have {
		path += ".loop"
		loop := &Loop{At: At{path}}
		switch vv := x.(type) {
		case []interface{}, nil:
			loop.Body = l.block(path+".body", vv)
		case map[string]interface{}:
			loop.Label = l.label(path+".label", vv["label"])
			loop.Suspend, _ = vv["suspend"].(bool)
			loop.Body = l.block(path+".body", vv["body"])
		default:
			l.errorf(path, "bad loop %T", x)
			return nil
		}
		return loop
	}

	if x, have := m["while"]; have {
		return &While{
			At:    at,
			Label: l.label(path+".label", m["label"]),
			Cond:  l.value(path+".while", x),
			Body:  l.block(path+".body", m["body"]),
		}
	}

	if x, have := m["if"]; have {
		return l.ifExpr(path, x, m)
	}

	if x, have := m["match"]; have {
		return l.match(path, x, m)
	}

	if x, have := m["break"]; have {
		return &Break{
			At:    at,
			Label: l.label(path+".break", x),
			Value: l.value(path+".value", m["value"]),
		}
	}

	if x, have := m["continue"]; have {
		if _, have := m["value"]; have {
			l.errorf(path, "continue can't carry a value")
		}
		return &Continue{At: at, Label: l.label(path+".continue", x)}
	}

	if x, have := m["return"]; have {
		return &Return{At: at, Value: l.value(path+".return", x)}
	}

	if x, have := m["fail"]; have {
		return &Fail{At: at, Reason: l.value(path+".fail", x)}
	}

	if x, have := m["mission"]; have {
		src, is := x.(string)
		if !is {
			l.errorf(path+".mission", "expected a call, not %T", x)
			return nil
		}
		name, args, err := parseCall(src)
		if err != nil {
			l.errorf(path+".mission", "%s: %v", src, err)
			return nil
		}
		return &Submission{At: at, Proc: name, Args: args}
	}

	if x, have := m["js"]; have {
		interpreter, _ := m["interpreter"].(string)
		return &Opaque{At: at, Interpreter: interpreter, Source: x}
	}

	if x, have := m["closure"]; have {
		return l.closure(path+".closure", x)
	}

	l.errorf(path, "unknown construct with keys %s", strings.Join(keys(m), ", "))
	return nil
}

func (l *loader) ifExpr(path string, cond interface{}, m map[string]interface{}) Expr {
	x := &If{
		At:   At{path},
		Cond: l.value(path+".if", cond),
		Then: l.block(path+".then", m["then"]),
	}
	switch vv := StringMaps(m["else"]).(type) {
	case nil:
	case []interface{}:
		x.Else = l.block(path+".else", vv)
	case map[string]interface{}:
		if c, have := vv["if"]; have {
			x.Else = l.ifExpr(path+".else", c, vv)
		} else {
			l.errorf(path+".else", "else needs statements or an if")
		}
	default:
		l.errorf(path+".else", "bad else %T", vv)
	}
	return x
}

func (l *loader) match(path string, subject interface{}, m map[string]interface{}) Expr {
	x := &Match{
		At:      At{path},
		Subject: l.value(path+".match", subject),
	}
	arms, is := StringMaps(m["arms"]).([]interface{})
	if !is {
		l.errorf(path+".arms", "match needs a list of arms")
		return x
	}
	for i, a := range arms {
		apath := fmt.Sprintf("%s.arms[%d]", path, i)
		am, is := a.(map[string]interface{})
		if !is {
			l.errorf(apath, "bad arm %T", a)
			continue
		}
		arm := &Arm{
			At:      At{apath},
			Pattern: am["pattern"],
			Guard:   l.value(apath+".guard", am["guard"]),
			Body:    l.block(apath+".body", am["body"]),
		}
		if v, have := am["value"]; have {
			arm.Values = append(arm.Values, l.value(apath+".value", v))
		}
		if vs, have := am["values"]; have {
			if t, is := l.value(apath+".values", vs).(*Tuple); is {
				arm.Values = append(arm.Values, t.Elems...)
			}
		}
		if d, _ := am["default"].(bool); d && !arm.Default() {
			l.errorf(apath, "default arm with values or a pattern")
		}
		x.Arms = append(x.Arms, arm)
	}
	return x
}

func (l *loader) closure(path string, x interface{}) Expr {
	m, is := x.(map[string]interface{})
	if !is {
		l.errorf(path, "closure needs a map, not %T", x)
		return nil
	}
	c := &Closure{At: At{path}, Body: l.block(path+".body", m["body"])}
	if r, have := m["result"]; have {
		c.Result = fmt.Sprint(r)
	}
	ps, _ := m["params"].([]interface{})
	for i, p := range ps {
		ppath := fmt.Sprintf("%s.params[%d]", path, i)
		pm, is := p.(map[string]interface{})
		if !is {
			l.errorf(ppath, "bad parameter %T", p)
			continue
		}
		name, ok := l.name(ppath+".name", pm["name"])
		if !ok {
			continue
		}
		c.Params = append(c.Params, &Param{
			Name: name,
			Type: fmt.Sprint(pm["type"]),
		})
	}
	return c
}
