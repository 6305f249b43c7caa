package machine

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"math"
	"reflect"
	"strconv"
	"sync"
)

var (
	anyType   = reflect.TypeOf((*interface{})(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	intType   = reflect.TypeOf(0)
)

var basicTypes = map[string]reflect.Type{
	"bool":        reflect.TypeOf(false),
	"string":      reflect.TypeOf(""),
	"int":         intType,
	"int8":        reflect.TypeOf(int8(0)),
	"int16":       reflect.TypeOf(int16(0)),
	"int32":       reflect.TypeOf(int32(0)),
	"int64":       reflect.TypeOf(int64(0)),
	"uint":        reflect.TypeOf(uint(0)),
	"uint8":       reflect.TypeOf(uint8(0)),
	"uint16":      reflect.TypeOf(uint16(0)),
	"uint32":      reflect.TypeOf(uint32(0)),
	"uint64":      reflect.TypeOf(uint64(0)),
	"uintptr":     reflect.TypeOf(uintptr(0)),
	"float32":     reflect.TypeOf(float32(0)),
	"float64":     reflect.TypeOf(float64(0)),
	"byte":        reflect.TypeOf(byte(0)),
	"rune":        reflect.TypeOf(rune(0)),
	"error":       errorType,
	"any":         anyType,
	"interface{}": anyType,
}

// types caches resolved type expressions.  A nil entry means the type
// is opaque to the interpreter and values pass through unconverted.
type types struct {
	sync.Mutex
	named map[string]reflect.Type
	cache map[string]reflect.Type
}

func newTypes(named map[string]reflect.Type) *types {
	return &types{
		named: named,
		cache: make(map[string]reflect.Type),
	}
}

func (ts *types) lookup(src string) reflect.Type {
	if src == "" {
		return nil
	}
	if t, have := basicTypes[src]; have {
		return t
	}
	ts.Lock()
	defer ts.Unlock()
	if t, have := ts.cache[src]; have {
		return t
	}
	var t reflect.Type
	if x, err := parser.ParseExpr(src); err == nil {
		t = ts.resolve(x)
	}
	ts.cache[src] = t
	return t
}

func (ts *types) resolve(x ast.Expr) reflect.Type {
	switch vv := x.(type) {
	case *ast.Ident:
		if t, have := basicTypes[vv.Name]; have {
			return t
		}
		return ts.named[vv.Name]
	case *ast.SelectorExpr:
		if pkg, is := vv.X.(*ast.Ident); is {
			return ts.named[pkg.Name+"."+vv.Sel.Name]
		}
	case *ast.ParenExpr:
		return ts.resolve(vv.X)
	case *ast.StarExpr:
		if t := ts.resolve(vv.X); t != nil {
			return reflect.PtrTo(t)
		}
	case *ast.ArrayType:
		elt := ts.resolve(vv.Elt)
		if elt == nil {
			elt = anyType
		}
		if vv.Len == nil {
			return reflect.SliceOf(elt)
		}
		if lit, is := vv.Len.(*ast.BasicLit); is && lit.Kind == token.INT {
			if n, err := strconv.Atoi(lit.Value); err == nil {
				return reflect.ArrayOf(n, elt)
			}
		}
	case *ast.MapType:
		k, v := ts.resolve(vv.Key), ts.resolve(vv.Value)
		if k == nil || !k.Comparable() {
			return nil
		}
		if v == nil {
			v = anyType
		}
		return reflect.MapOf(k, v)
	case *ast.InterfaceType:
		if vv.Methods == nil || len(vv.Methods.List) == 0 {
			return anyType
		}
	}
	return nil
}

func zero(t reflect.Type) interface{} {
	if t == nil || t.Kind() == reflect.Interface {
		return nil
	}
	return reflect.Zero(t).Interface()
}

// literal turns a literal into an untyped constant.
func literal(kind token.Token, src string) (constant.Value, error) {
	c := constant.MakeFromLiteral(src, kind, 0)
	if c.Kind() == constant.Unknown {
		return nil, fmt.Errorf("bad literal %s", src)
	}
	return c, nil
}

// settle gives an untyped constant its default type.  Other values
// are returned unchanged.
func settle(x interface{}) interface{} {
	c, is := x.(constant.Value)
	if !is {
		return x
	}
	switch c.Kind() {
	case constant.Bool:
		return constant.BoolVal(c)
	case constant.String:
		return constant.StringVal(c)
	case constant.Int:
		if i, exact := constant.Int64Val(c); exact && math.MinInt <= i && i <= math.MaxInt {
			return int(i)
		}
		f, _ := constant.Float64Val(c)
		return f
	case constant.Float:
		f, _ := constant.Float64Val(c)
		return f
	case constant.Complex:
		re, _ := constant.Float64Val(constant.Real(c))
		im, _ := constant.Float64Val(constant.Imag(c))
		return complex(re, im)
	}
	return nil
}

func settleAll(xs []interface{}) []interface{} {
	acc := make([]interface{}, len(xs))
	for i, x := range xs {
		acc[i] = settle(x)
	}
	return acc
}

// representable converts an untyped constant to a value of type t.
func representable(c constant.Value, t reflect.Type) (interface{}, error) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, exact := constant.Int64Val(constant.ToInt(c))
		if !exact || v.OverflowInt(i) {
			return nil, fmt.Errorf("constant %s overflows %s", c, t)
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, exact := constant.Uint64Val(constant.ToInt(c))
		if !exact || v.OverflowUint(u) {
			return nil, fmt.Errorf("constant %s overflows %s", c, t)
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, _ := constant.Float64Val(constant.ToFloat(c))
		if c.Kind() != constant.Int && c.Kind() != constant.Float {
			return nil, fmt.Errorf("cannot use %s as %s", c, t)
		}
		v.SetFloat(f)
	case reflect.String:
		if c.Kind() != constant.String {
			return nil, fmt.Errorf("cannot use %s as %s", c, t)
		}
		v.SetString(constant.StringVal(c))
	case reflect.Bool:
		if c.Kind() != constant.Bool {
			return nil, fmt.Errorf("cannot use %s as %s", c, t)
		}
		v.SetBool(constant.BoolVal(c))
	case reflect.Interface:
		x := settle(c)
		if !reflect.TypeOf(x).Implements(t) {
			return nil, fmt.Errorf("cannot use %s as %s", c, t)
		}
		return x, nil
	default:
		return nil, fmt.Errorf("cannot use %s as %s", c, t)
	}
	return v.Interface(), nil
}

func numeric(k reflect.Kind) bool {
	return reflect.Int <= k && k <= reflect.Float64
}

// coerce converts x to a value of type t.  A nil t accepts anything.
//
// Besides Go's assignability rules, numbers convert between numeric
// types, and the generic slices and maps that come out of JSON
// convert element by element.  Restoring snapshots depends on that.
func coerce(x interface{}, t reflect.Type) (interface{}, error) {
	if c, is := x.(constant.Value); is {
		if t == nil {
			return settle(c), nil
		}
		return representable(c, t)
	}
	if t == nil {
		return x, nil
	}
	if x == nil {
		return zero(t), nil
	}

	v := reflect.ValueOf(x)
	vt := v.Type()
	switch {
	case vt == t:
		return x, nil
	case t.Kind() == reflect.Interface:
		if vt.Implements(t) {
			return x, nil
		}
	case vt.AssignableTo(t):
		return v.Convert(t).Interface(), nil
	case numeric(vt.Kind()) && numeric(t.Kind()):
		return convertNumber(v, t)
	case vt.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		acc := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			y, err := coerce(v.Index(i).Interface(), t.Elem())
			if err != nil {
				return nil, err
			}
			setValue(acc.Index(i), y, t.Elem())
		}
		return acc.Interface(), nil
	case vt.Kind() == reflect.Map && t.Kind() == reflect.Map:
		acc := reflect.MakeMapWithSize(t, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := coerce(iter.Key().Interface(), t.Key())
			if err != nil {
				return nil, err
			}
			y, err := coerce(iter.Value().Interface(), t.Elem())
			if err != nil {
				return nil, err
			}
			acc.SetMapIndex(valueOf(k, t.Key()), valueOf(y, t.Elem()))
		}
		return acc.Interface(), nil
	}
	return nil, fmt.Errorf("cannot use %v (%s) as %s", x, vt, t)
}

// convertNumber converts between numeric types when the value fits.
func convertNumber(v reflect.Value, t reflect.Type) (interface{}, error) {
	out := reflect.New(t).Elem()
	bad := fmt.Errorf("%v (%s) doesn't fit in %s", v.Interface(), v.Type(), t)
	switch k := v.Kind(); {
	case isFloat(k):
		f := v.Float()
		switch {
		case isFloat(t.Kind()):
			out.SetFloat(f)
		case f != math.Trunc(f):
			return nil, bad
		case signed(t.Kind()):
			if out.OverflowInt(int64(f)) || f < math.MinInt64 || math.MaxInt64 < f {
				return nil, bad
			}
			out.SetInt(int64(f))
		default:
			if f < 0 || math.MaxUint64 < f || out.OverflowUint(uint64(f)) {
				return nil, bad
			}
			out.SetUint(uint64(f))
		}
	case signed(k):
		i := v.Int()
		switch {
		case isFloat(t.Kind()):
			out.SetFloat(float64(i))
		case signed(t.Kind()):
			if out.OverflowInt(i) {
				return nil, bad
			}
			out.SetInt(i)
		default:
			if i < 0 || out.OverflowUint(uint64(i)) {
				return nil, bad
			}
			out.SetUint(uint64(i))
		}
	default:
		u := v.Uint()
		switch {
		case isFloat(t.Kind()):
			out.SetFloat(float64(u))
		case signed(t.Kind()):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return nil, bad
			}
			out.SetInt(int64(u))
		default:
			if out.OverflowUint(u) {
				return nil, bad
			}
			out.SetUint(u)
		}
	}
	return out.Interface(), nil
}

func signed(k reflect.Kind) bool {
	return reflect.Int <= k && k <= reflect.Int64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// valueOf is reflect.ValueOf that gives nil a type.
func valueOf(x interface{}, t reflect.Type) reflect.Value {
	if x == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(x)
}

func setValue(dst reflect.Value, x interface{}, t reflect.Type) {
	dst.Set(valueOf(x, t))
}

// multi is the value of a call that returns more than one result.
type multi []interface{}

var errNotBool = errors.New("condition isn't a bool")

func truth(x interface{}) (bool, error) {
	switch vv := x.(type) {
	case bool:
		return vv, nil
	case constant.Value:
		if vv.Kind() == constant.Bool {
			return constant.BoolVal(vv), nil
		}
	default:
		if v := reflect.ValueOf(x); v.IsValid() && v.Kind() == reflect.Bool {
			return v.Bool(), nil
		}
	}
	return false, errNotBool
}
