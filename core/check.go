package core

import (
	"go/token"
	"sort"
	"strings"
)

// checker verifies that each state only refers to fields it has, and
// that names declared inside nested constructs don't collide with
// fields.
type checker struct {
	proc   *Procedure
	ds     *Diagnostics
	fields map[string]*Field
	tick   map[string]*Param
}

func (k *checker) errorf(path, format string, args ...interface{}) {
	k.ds.Errorf(k.proc.Name, path, format, args...)
}

func (k *checker) local(path, name string) {
	if _, have := k.fields[name]; have {
		k.errorf(path, "%s is already declared; shadowing is not supported", name)
	}
	if _, have := k.tick[name]; have {
		k.errorf(path, "%s shadows a tick parameter", name)
	}
}

func (k *checker) check(s *State) {
	avail := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		avail[f.Name] = true
	}
	for _, x := range s.Body {
		if l, is := x.(*Let); is {
			for _, b := range l.Names {
				avail[b.Name] = true
			}
		}
	}

	// scopes are the names declared by the enclosing nested
	// constructs.  A name can't be declared again while it's in
	// scope.
	var scopes []map[string]bool
	declare := func(path, name string) {
		k.local(path, name)
		if len(scopes) == 0 {
			return
		}
		for _, sc := range scopes {
			if sc[name] {
				k.errorf(path, "%s is already declared in an enclosing scope", name)
				return
			}
		}
		scopes[len(scopes)-1][name] = true
	}

	pre := func(c *Cursor) bool {
		switch x := c.Node().(type) {
		case *Ident:
			if _, field := k.fields[x.Name]; field && !avail[x.Name] {
				k.errorf(c.Pos(), "%s is used in %s before it is declared", x.Name, s.Name)
			}
		case *Block:
			scopes = append(scopes, make(map[string]bool))
			if m, is := c.Parent().(*Match); is {
				for _, a := range m.Arms {
					if a.Body != x {
						continue
					}
					for _, v := range PatternVars(a.Pattern) {
						declare(a.Pos(), v)
					}
				}
			}
		case *Match:
			for _, a := range x.Arms {
				if a.Body == nil {
					for _, v := range PatternVars(a.Pattern) {
						k.local(a.Pos(), v)
					}
				}
			}
		case *Closure:
			scopes = append(scopes, make(map[string]bool))
			for _, p := range x.Params {
				declare(x.Pos(), p.Name)
			}
		case *Let:
			if c.Parent() == nil {
				return true
			}
			if len(x.Names) != len(x.Types) {
				k.errorf(x.Pos(), "%d names but %d types", len(x.Names), len(x.Types))
			}
			for i, b := range x.Names {
				if i < len(x.Types) && x.Types[i] == "" {
					k.errorf(x.Pos(), "cannot infer the type of %s; write it out", b.Name)
				}
				if !token.IsIdentifier(b.Name) {
					k.errorf(x.Pos(), "bad name %q", b.Name)
				}
				declare(x.Pos(), b.Name)
			}
		}
		return true
	}

	post := func(c *Cursor) bool {
		switch c.Node().(type) {
		case *Block, *Closure:
			scopes = scopes[:len(scopes)-1]
		}
		return true
	}

	ApplyStmts(s.Body, pre, post)
}

// PatternVars returns the names bound by a structural pattern, without
// their leading "?".  Anonymous variables like "?_" and "?*" bind
// nothing.
func PatternVars(pat interface{}) []string {
	seen := make(map[string]bool)
	var walk func(interface{})
	walk = func(x interface{}) {
		switch vv := x.(type) {
		case string:
			if strings.HasPrefix(vv, "?") && 1 < len(vv) && vv[1] != '_' && vv[1] != '*' {
				seen[vv[1:]] = true
			}
		case map[string]interface{}:
			for k, v := range vv {
				walk(k)
				walk(v)
			}
		case []interface{}:
			for _, y := range vv {
				walk(y)
			}
		}
	}
	walk(pat)
	acc := make([]string, 0, len(seen))
	for v := range seen {
		acc = append(acc, v)
	}
	sort.Strings(acc)
	return acc
}
