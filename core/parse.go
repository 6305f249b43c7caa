package core

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// ParseExpr parses a Go expression.
func ParseExpr(src string) (Expr, error) {
	x, err := parser.ParseExpr(src)
	if err != nil {
		return nil, err
	}
	return convertExpr(x)
}

// ParseSimpleStmt parses a Go expression statement, assignment, or
// increment/decrement.
func ParseSimpleStmt(src string) (Expr, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", "package p\nfunc _() {\n"+src+"\n}\n", 0)
	if err != nil {
		return nil, err
	}
	fd, is := f.Decls[0].(*ast.FuncDecl)
	if !is || fd.Body == nil {
		return nil, errors.New("bad statement")
	}
	if len(fd.Body.List) != 1 {
		return nil, fmt.Errorf("expected one statement, found %d", len(fd.Body.List))
	}

	switch s := fd.Body.List[0].(type) {
	case *ast.ExprStmt:
		return convertExpr(s.X)
	case *ast.IncDecStmt:
		target, err := convertExpr(s.X)
		if err != nil {
			return nil, err
		}
		return &Assign{Op: s.Tok, Target: target}, nil
	case *ast.AssignStmt:
		if s.Tok == token.DEFINE {
			return nil, errors.New("use let to declare names")
		}
		if len(s.Lhs) != len(s.Rhs) {
			return nil, errors.New("assignment count mismatch")
		}
		lhs, err := convertExprs(s.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := convertExprs(s.Rhs)
		if err != nil {
			return nil, err
		}
		if len(lhs) == 1 {
			return &Assign{Op: s.Tok, Target: lhs[0], Value: rhs[0]}, nil
		}
		if s.Tok != token.ASSIGN {
			return nil, fmt.Errorf("%s needs a single target", s.Tok)
		}
		return &Assign{Op: s.Tok, Target: &Tuple{Elems: lhs}, Value: &Tuple{Elems: rhs}}, nil
	default:
		return nil, fmt.Errorf("unsupported statement %T", s)
	}
}

func convertExprs(xs []ast.Expr) ([]Expr, error) {
	acc := make([]Expr, 0, len(xs))
	for _, x := range xs {
		y, err := convertExpr(x)
		if err != nil {
			return nil, err
		}
		acc = append(acc, y)
	}
	return acc, nil
}

func convertExpr(x ast.Expr) (Expr, error) {
	switch vv := x.(type) {
	case *ast.Ident:
		return &Ident{Name: vv.Name}, nil
	case *ast.BasicLit:
		return &Lit{Kind: vv.Kind, Value: vv.Value}, nil
	case *ast.BinaryExpr:
		l, err := convertExpr(vv.X)
		if err != nil {
			return nil, err
		}
		r, err := convertExpr(vv.Y)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: vv.Op, X: l, Y: r}, nil
	case *ast.UnaryExpr:
		y, err := convertExpr(vv.X)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: vv.Op, X: y}, nil
	case *ast.StarExpr:
		y, err := convertExpr(vv.X)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: token.MUL, X: y}, nil
	case *ast.CallExpr:
		if vv.Ellipsis.IsValid() {
			return nil, errors.New("variadic calls are not supported")
		}
		fun, err := convertExpr(vv.Fun)
		if err != nil {
			return nil, err
		}
		args, err := convertExprs(vv.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Fun: fun, Args: args}, nil
	case *ast.SelectorExpr:
		y, err := convertExpr(vv.X)
		if err != nil {
			return nil, err
		}
		return &Selector{X: y, Sel: vv.Sel.Name}, nil
	case *ast.IndexExpr:
		y, err := convertExpr(vv.X)
		if err != nil {
			return nil, err
		}
		i, err := convertExpr(vv.Index)
		if err != nil {
			return nil, err
		}
		return &Index{X: y, Index: i}, nil
	case *ast.ParenExpr:
		y, err := convertExpr(vv.X)
		if err != nil {
			return nil, err
		}
		return &Paren{X: y}, nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", x)
	}
}

// parseCall parses "name(args...)" for a sub-mission.
func parseCall(src string) (string, []Expr, error) {
	x, err := ParseExpr(strings.TrimSpace(src))
	if err != nil {
		return "", nil, err
	}
	c, is := x.(*Call)
	if !is {
		return "", nil, errors.New("expected a call like name(args)")
	}
	id, is := c.Fun.(*Ident)
	if !is {
		return "", nil, errors.New("sub-mission must be named by an identifier")
	}
	return id.Name, c.Args, nil
}
