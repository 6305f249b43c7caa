package core

import (
	"context"
)

var (
	// DefaultInterpreters will be used by Compile if the given
	// options don't have any interpreters.
	DefaultInterpreters = NewInterpretersMap()

	// DefaultInterpreter is the interpreter name used for opaque
	// expressions when neither the expression nor its procedure
	// names one.
	DefaultInterpreter = "goja"
)

// ScriptEnv is what an opaque expression can see and do.
type ScriptEnv struct {
	// Bindings holds copies of the fields and tick parameters
	// visible where the expression runs.
	Bindings map[string]interface{}

	// Emit adds a message to the mission's Outbox.
	Emit func(x interface{})

	// Set assigns a field.  The value is converted to the field's
	// declared type.
	Set func(name string, x interface{}) error
}

// Interpreter can optionally compile and execute code for opaque
// expressions.
type Interpreter interface {
	// Compile can make something that helps when Exec()ing the
	// code later.
	Compile(ctx context.Context, code interface{}) (interface{}, error)

	// Exec executes the code and returns its value.  The result of
	// previous Compile() might be provided.
	Exec(ctx context.Context, env *ScriptEnv, code interface{}, compiled interface{}) (interface{}, error)
}

// InterpretersMap maps interpreter names to interpreters.
type InterpretersMap map[string]Interpreter

func NewInterpretersMap() InterpretersMap {
	return make(InterpretersMap, 4)
}

// Find returns the named interpreter.
func (m InterpretersMap) Find(name string) (Interpreter, error) {
	i, have := m[name]
	if !have {
		return nil, &InterpreterNotFound{Name: name}
	}
	return i, nil
}

// InterpreterFor returns the interpreter name an opaque expression
// uses.
func InterpreterFor(p *Procedure, x *Opaque) string {
	if x.Interpreter != "" {
		return x.Interpreter
	}
	if p != nil && p.Interpreter != "" {
		return p.Interpreter
	}
	return DefaultInterpreter
}
