package core

// ApplyFunc is called by Apply for each node.
//
// When a pre function returns false, the node's children are skipped.
// When a post function returns false, Apply stops.
type ApplyFunc func(*Cursor) bool

// frame is an enclosing loop or closure.
type frame struct {
	label   string
	suspend bool
	closure bool
}

// Cursor describes the node being visited by Apply.
type Cursor struct {
	node   Node
	parent Node
	pos    string
	frames []frame
	// let is the declaration whose initialiser is being visited.
	let *Let
}

// Node returns the current node.
func (c *Cursor) Node() Node {
	return c.node
}

// Parent returns the node containing the current node, if any.
func (c *Cursor) Parent() Node {
	return c.parent
}

// Replace substitutes n for the current node.  An Expr must be
// replaced by an Expr and a Stmt by a Stmt.
func (c *Cursor) Replace(n Node) {
	c.node = n
}

// Pos returns the path of the nearest enclosing construct that has
// one.
func (c *Cursor) Pos() string {
	return c.pos
}

// Initializes returns the Let whose initialiser is the current node.
func (c *Cursor) Initializes() *Let {
	return c.let
}

// InClosure reports whether the current node is inside a Closure.
func (c *Cursor) InClosure() bool {
	for _, f := range c.frames {
		if f.closure {
			return true
		}
	}
	return false
}

// InLoop reports whether there's an enclosing loop that is not
// separated from the current node by a Closure.
func (c *Cursor) InLoop() bool {
	if len(c.frames) == 0 {
		return false
	}
	return !c.frames[len(c.frames)-1].closure
}

// HasLabel reports whether a loop with the given label encloses the
// current node without an intervening Closure.
func (c *Cursor) HasLabel(label string) bool {
	for i := len(c.frames) - 1; 0 <= i; i-- {
		f := c.frames[i]
		if f.closure {
			return false
		}
		if f.label == label {
			return true
		}
	}
	return false
}

// Apply traverses n depth-first, calling pre before and post after a
// node's children, and returns the (possibly replaced) node.
//
// Every construct is enumerated here once.  Passes that rewrite or
// check procedures only supply hooks.
func Apply(n Node, pre, post ApplyFunc) Node {
	a := &applier{pre: pre, post: post}
	return a.apply(n, nil)
}

// ApplyStmts is Apply for each statement of a list.
func ApplyStmts(ss []Stmt, pre, post ApplyFunc) []Stmt {
	a := &applier{pre: pre, post: post}
	a.stmts(ss, nil)
	return ss
}

type applier struct {
	pre, post ApplyFunc
	c         Cursor
	stop      bool
}

func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch vv := n.(type) {
	case *Block:
		return vv == nil
	case *If:
		return vv == nil
	}
	return false
}

func (a *applier) apply(n Node, parent Node) Node {
	if isNil(n) || a.stop {
		return n
	}

	saved := a.c
	a.c.node = n
	a.c.parent = parent
	if p, is := n.(positioned); is && p.Pos() != "" {
		a.c.pos = p.Pos()
	}

	if a.pre != nil && !a.pre(&a.c) {
		n = a.c.node
		a.c = saved
		return n
	}
	n = a.c.node

	a.c.let = nil
	a.children(n)

	if a.post != nil && !a.stop {
		a.c.node = n
		if !a.post(&a.c) {
			a.stop = true
		}
		n = a.c.node
	}

	a.c = saved
	return n
}

func (a *applier) expr(x Expr, parent Node) Expr {
	if x == nil {
		return nil
	}
	if y, is := a.apply(x, parent).(Expr); is {
		return y
	}
	return x
}

func (a *applier) exprs(xs []Expr, parent Node) {
	for i, x := range xs {
		xs[i] = a.expr(x, parent)
	}
}

func (a *applier) block(b *Block, parent Node) *Block {
	if b == nil {
		return nil
	}
	if y, is := a.apply(b, parent).(*Block); is {
		return y
	}
	return b
}

func (a *applier) stmts(ss []Stmt, parent Node) {
	for i, s := range ss {
		if y, is := a.apply(s, parent).(Stmt); is {
			ss[i] = y
		}
	}
}

func (a *applier) push(f frame) {
	a.c.frames = append(a.c.frames[:len(a.c.frames):len(a.c.frames)], f)
}

func (a *applier) pop() {
	a.c.frames = a.c.frames[:len(a.c.frames)-1]
}

func (a *applier) children(n Node) {
	switch x := n.(type) {
	case *Let:
		a.c.let = x
		x.Init = a.expr(x.Init, x)
		a.c.let = nil
	case *ExprStmt:
		x.X = a.expr(x.X, x)
	case *Ident, *Lit, *Continue, *Opaque:
	case *Binary:
		x.X = a.expr(x.X, x)
		x.Y = a.expr(x.Y, x)
	case *Unary:
		x.X = a.expr(x.X, x)
	case *Call:
		x.Fun = a.expr(x.Fun, x)
		a.exprs(x.Args, x)
	case *Selector:
		x.X = a.expr(x.X, x)
	case *Index:
		x.X = a.expr(x.X, x)
		x.Index = a.expr(x.Index, x)
	case *Paren:
		x.X = a.expr(x.X, x)
	case *Tuple:
		a.exprs(x.Elems, x)
	case *Assign:
		x.Target = a.expr(x.Target, x)
		x.Value = a.expr(x.Value, x)
	case *Block:
		a.stmts(x.Stmts, x)
	case *Loop:
		a.push(frame{label: x.Label, suspend: x.Suspend})
		x.Body = a.block(x.Body, x)
		a.pop()
	case *While:
		x.Cond = a.expr(x.Cond, x)
		a.push(frame{label: x.Label})
		x.Body = a.block(x.Body, x)
		a.pop()
	case *If:
		x.Cond = a.expr(x.Cond, x)
		x.Then = a.block(x.Then, x)
		x.Else = a.expr(x.Else, x)
	case *Match:
		x.Subject = a.expr(x.Subject, x)
		for _, arm := range x.Arms {
			a.exprs(arm.Values, x)
			arm.Guard = a.expr(arm.Guard, x)
			arm.Body = a.block(arm.Body, x)
		}
	case *Closure:
		a.push(frame{closure: true})
		x.Body = a.block(x.Body, x)
		a.pop()
	case *Break:
		x.Value = a.expr(x.Value, x)
	case *Return:
		x.Value = a.expr(x.Value, x)
	case *Fail:
		x.Reason = a.expr(x.Reason, x)
	case *Submission:
		a.exprs(x.Args, x)
	case *Goto:
		x.Value = a.expr(x.Value, x)
	case *Finish:
		x.Value = a.expr(x.Value, x)
	case *Spawn:
		a.exprs(x.Args, x)
	case *Await:
		if x.Exit != nil {
			if g, is := a.apply(x.Exit, x).(*Goto); is {
				x.Exit = g
			}
		}
	}
}

// Walk calls f for every node under n, in depth-first order.
func Walk(n Node, f func(*Cursor)) {
	Apply(n, func(c *Cursor) bool {
		f(c)
		return true
	}, nil)
}

// WalkStmts is Walk for each statement of a list.
func WalkStmts(ss []Stmt, f func(*Cursor)) {
	ApplyStmts(ss, func(c *Cursor) bool {
		f(c)
		return true
	}, nil)
}
