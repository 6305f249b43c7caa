package core

// rewriter turns control transfers that leave a state into explicit
// transitions: labeled break and continue become Gotos, return and
// fail become Finishes.
type rewriter struct {
	proc  *Procedure
	ds    *Diagnostics
	loops map[string]*LoopEntry
	state *State
}

func (r *rewriter) errorf(path, format string, args ...interface{}) {
	r.ds.Errorf(r.proc.Name, path, format, args...)
}

// terminate makes sure the state's body ends with a transition.
func (r *rewriter) terminate(s *State) {
	n := len(s.Body)
	if 0 < n && Terminates(s.Body[n-1]) {
		return
	}

	if !s.Terminal() {
		s.Body = append(s.Body, &ExprStmt{X: &Goto{Target: s.Next, Yield: s.Yield}})
		return
	}

	if r.proc.Result == "" {
		s.Body = append(s.Body, &ExprStmt{X: &Finish{}})
		return
	}

	if 0 < n {
		if last, is := s.Body[n-1].(*ExprStmt); is && isValue(last.X) {
			last.X = &Finish{At: last.At, Value: last.X}
			return
		}
	}

	r.errorf("body", "%s must end with a value of type %s", r.proc.Name, r.proc.Result)
	s.Body = append(s.Body, &ExprStmt{X: &Finish{}})
}

func (r *rewriter) rewrite(s *State) {
	r.state = s
	r.terminate(s)
	s.Body = ApplyStmts(s.Body, nil, r.post)
}

func (r *rewriter) enclosing(label string) bool {
	for _, l := range r.state.Loops {
		if l == label {
			return true
		}
	}
	return false
}

// target resolves the suspending loop that a break or continue
// leaves.  It returns nil when the transfer stays inside the state.
func (r *rewriter) target(c *Cursor, label, what string) *LoopEntry {
	if label == "" {
		if c.InLoop() {
			return nil
		}
		n := len(r.state.Loops)
		if c.InClosure() || n == 0 {
			r.errorf(c.Pos(), "%s outside of a loop", what)
			return nil
		}
		label = r.state.Loops[n-1]
	} else {
		if c.HasLabel(label) {
			return nil
		}
		if c.InClosure() {
			r.errorf(c.Pos(), "%s %s: label isn't reachable from inside a closure", what, label)
			return nil
		}
		if !r.enclosing(label) {
			r.errorf(c.Pos(), "%s %s: no enclosing loop has that label", what, label)
			return nil
		}
	}
	e, have := r.loops[label]
	if !have {
		r.errorf(c.Pos(), "%s %s: unknown loop", what, label)
		return nil
	}
	return e
}

func (r *rewriter) post(c *Cursor) bool {
	switch x := c.Node().(type) {
	case *Break:
		e := r.target(c, x.Label, "break")
		if e == nil {
			return true
		}
		g := &Goto{At: x.At, Target: e.Break, Label: e.Label, Yield: true}
		switch {
		case e.Decl != nil && x.Value == nil:
			r.errorf(c.Pos(), "break %s needs a value for %s", e.Label, e.Decl.Name)
		case e.Decl == nil && x.Value != nil:
			r.errorf(c.Pos(), "break %s carries a value but loop %s initialises nothing", e.Label, e.Label)
		case e.Decl != nil:
			g.Value = x.Value
			g.Decl = e.Decl.Name
		}
		c.Replace(g)

	case *Continue:
		e := r.target(c, x.Label, "continue")
		if e == nil {
			return true
		}
		c.Replace(&Goto{At: x.At, Target: e.Continue, Label: e.Label, Yield: true})

	case *Return:
		if c.InClosure() {
			return true
		}
		if x.Value == nil && r.proc.Result != "" {
			r.errorf(c.Pos(), "return needs a value of type %s", r.proc.Result)
		}
		c.Replace(&Finish{At: x.At, Value: x.Value})

	case *Fail:
		if c.InClosure() {
			r.errorf(c.Pos(), "fail inside a closure")
			return true
		}
		c.Replace(&Finish{At: x.At, Failed: true, Value: x.Reason})

	case *Await:
		e, have := r.loops[x.Label]
		if !have {
			r.errorf(c.Pos(), "await outside of its loop %s", x.Label)
			return true
		}
		x.Exit = &Goto{At: x.At, Target: e.Break, Label: e.Label, Yield: true}
		if f, have := r.state.Field(x.Mission); have {
			e.Mission = f.Mission
		}
		if e.Decl != nil {
			x.Exit.Decl = e.Decl.Name
		}

	case *Loop:
		if x.Suspend {
			r.errorf(c.Pos(), "loop %s spans ticks, so it must be a statement or initialise a declaration", x.Label)
		}

	case *Submission:
		r.errorf(c.Pos(), "sub-mission %s must be a statement or initialise a declaration", x.Proc)
	}
	return true
}
