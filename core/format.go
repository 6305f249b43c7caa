package core

import (
	"fmt"
	"strings"
)

// FormatExpr renders an expression.  Operators and leaves come out as
// Go source.  Statement-bearing constructs use a compact notation
// meant for people.
func FormatExpr(x Expr) string {
	var b strings.Builder
	formatExpr(&b, x)
	return b.String()
}

// FormatStmt renders a statement on one line.
func FormatStmt(s Stmt) string {
	var b strings.Builder
	formatStmt(&b, s)
	return b.String()
}

// FormatBody renders statements, one per line, with the given
// indentation.
func FormatBody(ss []Stmt, indent string) string {
	var b strings.Builder
	for _, s := range ss {
		b.WriteString(indent)
		formatStmt(&b, s)
		b.WriteString("\n")
	}
	return b.String()
}

func formatStmt(b *strings.Builder, s Stmt) {
	switch vv := s.(type) {
	case *Let:
		b.WriteString("let ")
		for i, n := range vv.Names {
			if 0 < i {
				b.WriteString(", ")
			}
			if n.Mut {
				b.WriteString("mut ")
			}
			b.WriteString(n.Name)
			if i < len(vv.Types) && vv.Types[i] != "" {
				b.WriteString(" " + vv.Types[i])
			}
		}
		if vv.Init != nil {
			b.WriteString(" = ")
			formatExpr(b, vv.Init)
		}
	case *ExprStmt:
		formatExpr(b, vv.X)
	default:
		fmt.Fprintf(b, "%T", s)
	}
}

func formatExprs(b *strings.Builder, xs []Expr) {
	for i, x := range xs {
		if 0 < i {
			b.WriteString(", ")
		}
		formatExpr(b, x)
	}
}

func formatBlock(b *strings.Builder, x *Block) {
	if x == nil || len(x.Stmts) == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteString("{ ")
	for i, s := range x.Stmts {
		if 0 < i {
			b.WriteString("; ")
		}
		formatStmt(b, s)
	}
	b.WriteString(" }")
}

func label(l string) string {
	if l == "" {
		return ""
	}
	return " " + l
}

func formatExpr(b *strings.Builder, x Expr) {
	switch vv := x.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Ident:
		b.WriteString(vv.Name)
	case *Lit:
		b.WriteString(vv.Value)
	case *Binary:
		formatExpr(b, vv.X)
		b.WriteString(" " + vv.Op.String() + " ")
		formatExpr(b, vv.Y)
	case *Unary:
		b.WriteString(vv.Op.String())
		formatExpr(b, vv.X)
	case *Call:
		formatExpr(b, vv.Fun)
		b.WriteString("(")
		formatExprs(b, vv.Args)
		b.WriteString(")")
	case *Selector:
		formatExpr(b, vv.X)
		b.WriteString("." + vv.Sel)
	case *Index:
		formatExpr(b, vv.X)
		b.WriteString("[")
		formatExpr(b, vv.Index)
		b.WriteString("]")
	case *Paren:
		b.WriteString("(")
		formatExpr(b, vv.X)
		b.WriteString(")")
	case *Tuple:
		formatExprs(b, vv.Elems)
	case *Assign:
		formatExpr(b, vv.Target)
		if vv.Value == nil {
			b.WriteString(vv.Op.String())
			return
		}
		b.WriteString(" " + vv.Op.String() + " ")
		formatExpr(b, vv.Value)
	case *Block:
		formatBlock(b, vv)
	case *Loop:
		if vv.Suspend {
			b.WriteString("suspend ")
		}
		b.WriteString("loop" + label(vv.Label) + " ")
		formatBlock(b, vv.Body)
	case *While:
		b.WriteString("while" + label(vv.Label) + " ")
		formatExpr(b, vv.Cond)
		b.WriteString(" ")
		formatBlock(b, vv.Body)
	case *If:
		b.WriteString("if ")
		formatExpr(b, vv.Cond)
		b.WriteString(" ")
		formatBlock(b, vv.Then)
		if vv.Else != nil {
			b.WriteString(" else ")
			formatExpr(b, vv.Else)
		}
	case *Match:
		b.WriteString("match ")
		formatExpr(b, vv.Subject)
		b.WriteString(" { ")
		for i, a := range vv.Arms {
			if 0 < i {
				b.WriteString("; ")
			}
			switch {
			case a.Pattern != nil:
				fmt.Fprintf(b, "%v", a.Pattern)
			case a.Default():
				b.WriteString("_")
			default:
				formatExprs(b, a.Values)
			}
			if a.Guard != nil {
				b.WriteString(" if ")
				formatExpr(b, a.Guard)
			}
			b.WriteString(" => ")
			formatBlock(b, a.Body)
		}
		b.WriteString(" }")
	case *Closure:
		b.WriteString("func(")
		for i, p := range vv.Params {
			if 0 < i {
				b.WriteString(", ")
			}
			b.WriteString(p.Name + " " + p.Type)
		}
		b.WriteString(")")
		if vv.Result != "" {
			b.WriteString(" " + vv.Result)
		}
		b.WriteString(" ")
		formatBlock(b, vv.Body)
	case *Break:
		b.WriteString("break" + label(vv.Label))
		if vv.Value != nil {
			b.WriteString(" ")
			formatExpr(b, vv.Value)
		}
	case *Continue:
		b.WriteString("continue" + label(vv.Label))
	case *Return:
		b.WriteString("return")
		if vv.Value != nil {
			b.WriteString(" ")
			formatExpr(b, vv.Value)
		}
	case *Fail:
		b.WriteString("fail ")
		formatExpr(b, vv.Reason)
	case *Submission:
		b.WriteString("mission " + vv.Proc + "(")
		formatExprs(b, vv.Args)
		b.WriteString(")")
	case *Opaque:
		fmt.Fprintf(b, "%s`%v`", vv.Interpreter, vv.Source)
	case *Goto:
		if vv.Yield {
			b.WriteString("yield ")
		}
		fmt.Fprintf(b, "goto State%d", vv.Target)
		if vv.Decl != "" {
			b.WriteString(" with " + vv.Decl)
			if vv.Value != nil {
				b.WriteString(" = ")
				formatExpr(b, vv.Value)
			}
		}
	case *Finish:
		if vv.Failed {
			b.WriteString("finish failed")
		} else {
			b.WriteString("finish done")
		}
		if vv.Value != nil {
			b.WriteString(" ")
			formatExpr(b, vv.Value)
		}
	case *Spawn:
		b.WriteString("spawn " + vv.Proc + "(")
		formatExprs(b, vv.Args)
		b.WriteString(")")
	case *Await:
		b.WriteString("await " + vv.Mission)
		if vv.Exit != nil {
			b.WriteString(" then ")
			formatExpr(b, vv.Exit)
		}
	default:
		fmt.Fprintf(b, "%T", x)
	}
}
