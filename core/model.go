package core

import (
	"go/token"
)

// Procedure is a mission written in ordinary blocking style.
//
// Compile turns a Procedure into a Program whose states can be
// executed one tick at a time.
type Procedure struct {
	Name string `json:"name" yaml:"name"`
	Doc  string `json:"doc,omitempty" yaml:",omitempty"`

	Params []*Param `json:"params,omitempty" yaml:",omitempty"`

	// Result is the Go type of the value the procedure produces.
	// Empty means no value.
	Result string `json:"result,omitempty" yaml:",omitempty"`

	// Interpreter is the default interpreter for opaque
	// expressions.
	Interpreter string `json:"interpreter,omitempty" yaml:",omitempty"`

	Body []Stmt `json:"-" yaml:"-"`
}

// Param is a procedure parameter.
type Param struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`

	// Tick marks a parameter that is supplied fresh on every
	// step.  Tick parameters are never persisted and are not
	// constructor arguments.
	Tick bool `json:"tick,omitempty" yaml:",omitempty"`

	Mut bool `json:"mut,omitempty" yaml:",omitempty"`
}

// TickParams returns the tick-scoped parameters in order.
func (p *Procedure) TickParams() []*Param {
	acc := make([]*Param, 0, len(p.Params))
	for _, x := range p.Params {
		if x.Tick {
			acc = append(acc, x)
		}
	}
	return acc
}

// InitParams returns the constructor parameters in order.
func (p *Procedure) InitParams() []*Param {
	acc := make([]*Param, 0, len(p.Params))
	for _, x := range p.Params {
		if !x.Tick {
			acc = append(acc, x)
		}
	}
	return acc
}

// Node is a Stmt or an Expr.
type Node interface {
	node()
}

// Stmt is a statement in a body.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression.  Statement-bearing constructs (blocks,
// loops, conditionals) are expressions too.
type Expr interface {
	Node
	expr()
}

// At records where a construct came from.
type At struct {
	Path string `json:"path,omitempty" yaml:",omitempty"`
}

func (a At) Pos() string {
	return a.Path
}

type positioned interface {
	Pos() string
}

// Binding is one name introduced by a Let.
type Binding struct {
	Name string
	Mut  bool
}

// Let declares one or more names.  Types pair with Names one to one.
// Init can be nil, in which case the names start at their zero values.
type Let struct {
	At
	Names []Binding
	Types []string
	Init  Expr
}

// ExprStmt evaluates an expression for its effects.
type ExprStmt struct {
	At
	X Expr
}

type (
	Ident struct {
		Name string
	}

	// Lit is a Go literal in source form.
	Lit struct {
		Kind  token.Token
		Value string
	}

	Binary struct {
		Op   token.Token
		X, Y Expr
	}

	Unary struct {
		Op token.Token
		X  Expr
	}

	Call struct {
		Fun  Expr
		Args []Expr
	}

	Selector struct {
		X   Expr
		Sel string
	}

	Index struct {
		X, Index Expr
	}

	Paren struct {
		X Expr
	}

	// Tuple is a list of values, used to initialise several names
	// at once.
	Tuple struct {
		Elems []Expr
	}

	// Assign is an assignment.  Op is token.ASSIGN, an operator
	// assignment like token.ADD_ASSIGN, or token.INC/token.DEC
	// (with a nil Value).
	Assign struct {
		Op     token.Token
		Target Expr
		Value  Expr
	}

	Block struct {
		At
		Stmts []Stmt
	}

	// Loop repeats its body until a break.  A Suspend loop can span
	// ticks: its body becomes one or more states.
	Loop struct {
		At
		Label   string
		Suspend bool
		Body    *Block
	}

	While struct {
		At
		Label string
		Cond  Expr
		Body  *Block
	}

	// If has an Else that is nil, a *Block, or an *If.
	If struct {
		At
		Cond Expr
		Then *Block
		Else Expr
	}

	Match struct {
		At
		Subject Expr
		Arms    []*Arm
	}

	// Closure is a function value.  Control transfers inside a
	// Closure belong to the Closure.
	Closure struct {
		At
		Params []*Param
		Result string
		Body   *Block
	}

	Break struct {
		At
		Label string
		Value Expr
	}

	Continue struct {
		At
		Label string
	}

	Return struct {
		At
		Value Expr
	}

	// Fail ends the mission with an error built from Reason.
	Fail struct {
		At
		Reason Expr
	}

	// Submission calls another procedure as a sub-mission.
	Submission struct {
		At
		Proc string
		Args []Expr
	}

	// Opaque is code in another language, run by an Interpreter.
	Opaque struct {
		At
		Interpreter string
		Source      interface{}
		Compiled    interface{}
	}
)

// Arm is one case of a Match.
//
// An Arm with neither Values nor Pattern is the default.  Pattern is a
// structural pattern (see package match) whose "?x" variables are
// bound in Body.
type Arm struct {
	At
	Values  []Expr
	Pattern interface{}
	Guard   Expr
	Body    *Block
}

func (a *Arm) Default() bool {
	return len(a.Values) == 0 && a.Pattern == nil
}

// The following nodes are produced by Compile.  They never appear in
// loaded procedures.
type (
	// Goto moves the machine to state Target.  A Yield Goto ends
	// the current step with InProgress.  Otherwise the target state
	// runs in the same step.
	//
	// If Decl is not empty, Value initialises that field of the
	// target state.
	Goto struct {
		At
		Target int
		Label  string
		Value  Expr
		Decl   string
		Yield  bool
	}

	// Finish ends the mission.
	Finish struct {
		At
		Failed bool
		Value  Expr
	}

	// Spawn constructs a sub-mission.
	Spawn struct {
		At
		Proc string
		Args []Expr
	}

	// Await polls the sub-mission held in field Mission once.  When
	// the sub-mission is done, Exit is taken (with the sub-mission's
	// value if Exit.Decl is set).  When it fails, the mission fails.
	Await struct {
		At
		Mission string
		Label   string
		Exit    *Goto
	}
)

func (*Let) node()      {}
func (*ExprStmt) node() {}
func (*Ident) node()    {}
func (*Lit) node()      {}
func (*Binary) node()   {}
func (*Unary) node()    {}
func (*Call) node()     {}
func (*Selector) node() {}
func (*Index) node()    {}
func (*Paren) node()    {}
func (*Tuple) node()    {}
func (*Assign) node()   {}
func (*Block) node()    {}
func (*Loop) node()     {}
func (*While) node()    {}
func (*If) node()       {}
func (*Match) node()    {}
func (*Closure) node()  {}
func (*Break) node()    {}
func (*Continue) node() {}
func (*Return) node()   {}
func (*Fail) node()     {}
func (*Submission) node() {}
func (*Opaque) node()   {}
func (*Goto) node()     {}
func (*Finish) node()   {}
func (*Spawn) node()    {}
func (*Await) node()    {}

func (*Let) stmt()      {}
func (*ExprStmt) stmt() {}

func (*Ident) expr()      {}
func (*Lit) expr()        {}
func (*Binary) expr()     {}
func (*Unary) expr()      {}
func (*Call) expr()       {}
func (*Selector) expr()   {}
func (*Index) expr()      {}
func (*Paren) expr()      {}
func (*Tuple) expr()      {}
func (*Assign) expr()     {}
func (*Block) expr()      {}
func (*Loop) expr()       {}
func (*While) expr()      {}
func (*If) expr()         {}
func (*Match) expr()      {}
func (*Closure) expr()    {}
func (*Break) expr()      {}
func (*Continue) expr()   {}
func (*Return) expr()     {}
func (*Fail) expr()       {}
func (*Submission) expr() {}
func (*Opaque) expr()     {}
func (*Goto) expr()       {}
func (*Finish) expr()     {}
func (*Spawn) expr()      {}
func (*Await) expr()      {}

// Terminates reports whether x always transfers control away, so
// that nothing after it in the same block runs.
func Terminates(x Node) bool {
	switch vv := x.(type) {
	case *ExprStmt:
		return Terminates(vv.X)
	case *Goto, *Finish, *Break, *Continue, *Return, *Fail:
		return true
	case *Block:
		if vv == nil || len(vv.Stmts) == 0 {
			return false
		}
		return Terminates(vv.Stmts[len(vv.Stmts)-1])
	case *If:
		if vv.Else == nil {
			return false
		}
		return Terminates(vv.Then) && Terminates(vv.Else)
	case *Match:
		dflt := false
		for _, a := range vv.Arms {
			if a.Default() && a.Guard == nil {
				dflt = true
			}
			if !Terminates(a.Body) {
				return false
			}
		}
		return dflt
	}
	return false
}
