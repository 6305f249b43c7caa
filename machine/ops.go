package machine

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"reflect"
)

var ErrDivideByZero = errors.New("division by zero")

func comparison(op token.Token) bool {
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	}
	return false
}

func shift(op token.Token) bool {
	return op == token.SHL || op == token.SHR
}

func isNil(x interface{}) bool {
	if x == nil {
		return true
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// binary applies a non-logical binary operator.
func binary(op token.Token, x, y interface{}) (interface{}, error) {
	if x == nil || y == nil {
		switch op {
		case token.EQL:
			return isNil(x) && isNil(y), nil
		case token.NEQ:
			return !(isNil(x) && isNil(y)), nil
		}
		return nil, fmt.Errorf("operator %s not defined on nil", op)
	}

	cx, xc := x.(constant.Value)
	cy, yc := y.(constant.Value)

	switch {
	case xc && yc:
		return constBinary(op, cx, cy)
	case shift(op):
		n, err := coerce(y, reflect.TypeOf(uint(0)))
		if err != nil {
			return nil, fmt.Errorf("shift count: %w", err)
		}
		if xc {
			x = settle(cx)
		}
		return typedShift(op, reflect.ValueOf(x), n.(uint))
	case xc:
		v, err := representable(cx, reflect.TypeOf(y))
		if err != nil {
			return nil, err
		}
		x = v
	case yc:
		v, err := representable(cy, reflect.TypeOf(x))
		if err != nil {
			return nil, err
		}
		y = v
	}

	vx, vy := reflect.ValueOf(x), reflect.ValueOf(y)
	if vx.Type() != vy.Type() {
		if op == token.EQL || op == token.NEQ {
			eq := vx.Type().Comparable() && vy.Type().Comparable() && x == y
			return eq == (op == token.EQL), nil
		}
		return nil, fmt.Errorf("mismatched types %s and %s for %s", vx.Type(), vy.Type(), op)
	}
	return typedBinary(op, vx, vy)
}

func constBinary(op token.Token, x, y constant.Value) (r interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("invalid operation %s %s %s", x, op, y)
		}
	}()
	if comparison(op) {
		return constant.Compare(x, op, y), nil
	}
	if shift(op) {
		n, exact := constant.Uint64Val(y)
		if !exact {
			return nil, fmt.Errorf("bad shift count %s", y)
		}
		return constant.Shift(x, op, uint(n)), nil
	}
	if (op == token.QUO || op == token.REM) && constant.Sign(y) == 0 {
		return nil, ErrDivideByZero
	}
	if op == token.QUO && x.Kind() == constant.Int && y.Kind() == constant.Int {
		op = token.QUO_ASSIGN
	}
	return constant.BinaryOp(x, op, y), nil
}

func typedShift(op token.Token, x reflect.Value, n uint) (interface{}, error) {
	r := reflect.New(x.Type()).Elem()
	switch x.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if op == token.SHL {
			r.SetInt(x.Int() << n)
		} else {
			r.SetInt(x.Int() >> n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if op == token.SHL {
			r.SetUint(x.Uint() << n)
		} else {
			r.SetUint(x.Uint() >> n)
		}
	default:
		return nil, fmt.Errorf("shift of %s", x.Type())
	}
	return r.Interface(), nil
}

func typedBinary(op token.Token, x, y reflect.Value) (interface{}, error) {
	t := x.Type()
	r := reflect.New(t).Elem()

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		a, b := x.Int(), y.Int()
		switch op {
		case token.ADD:
			r.SetInt(a + b)
		case token.SUB:
			r.SetInt(a - b)
		case token.MUL:
			r.SetInt(a * b)
		case token.QUO, token.REM:
			if b == 0 {
				return nil, ErrDivideByZero
			}
			if op == token.QUO {
				r.SetInt(a / b)
			} else {
				r.SetInt(a % b)
			}
		case token.AND:
			r.SetInt(a & b)
		case token.OR:
			r.SetInt(a | b)
		case token.XOR:
			r.SetInt(a ^ b)
		case token.AND_NOT:
			r.SetInt(a &^ b)
		case token.EQL:
			return a == b, nil
		case token.NEQ:
			return a != b, nil
		case token.LSS:
			return a < b, nil
		case token.LEQ:
			return a <= b, nil
		case token.GTR:
			return a > b, nil
		case token.GEQ:
			return a >= b, nil
		default:
			return nil, fmt.Errorf("operator %s not defined on %s", op, t)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		a, b := x.Uint(), y.Uint()
		switch op {
		case token.ADD:
			r.SetUint(a + b)
		case token.SUB:
			r.SetUint(a - b)
		case token.MUL:
			r.SetUint(a * b)
		case token.QUO, token.REM:
			if b == 0 {
				return nil, ErrDivideByZero
			}
			if op == token.QUO {
				r.SetUint(a / b)
			} else {
				r.SetUint(a % b)
			}
		case token.AND:
			r.SetUint(a & b)
		case token.OR:
			r.SetUint(a | b)
		case token.XOR:
			r.SetUint(a ^ b)
		case token.AND_NOT:
			r.SetUint(a &^ b)
		case token.EQL:
			return a == b, nil
		case token.NEQ:
			return a != b, nil
		case token.LSS:
			return a < b, nil
		case token.LEQ:
			return a <= b, nil
		case token.GTR:
			return a > b, nil
		case token.GEQ:
			return a >= b, nil
		default:
			return nil, fmt.Errorf("operator %s not defined on %s", op, t)
		}

	case reflect.Float32, reflect.Float64:
		a, b := x.Float(), y.Float()
		switch op {
		case token.ADD:
			r.SetFloat(a + b)
		case token.SUB:
			r.SetFloat(a - b)
		case token.MUL:
			r.SetFloat(a * b)
		case token.QUO:
			r.SetFloat(a / b)
		case token.EQL:
			return a == b, nil
		case token.NEQ:
			return a != b, nil
		case token.LSS:
			return a < b, nil
		case token.LEQ:
			return a <= b, nil
		case token.GTR:
			return a > b, nil
		case token.GEQ:
			return a >= b, nil
		default:
			return nil, fmt.Errorf("operator %s not defined on %s", op, t)
		}

	case reflect.String:
		a, b := x.String(), y.String()
		switch op {
		case token.ADD:
			r.SetString(a + b)
		case token.EQL:
			return a == b, nil
		case token.NEQ:
			return a != b, nil
		case token.LSS:
			return a < b, nil
		case token.LEQ:
			return a <= b, nil
		case token.GTR:
			return a > b, nil
		case token.GEQ:
			return a >= b, nil
		default:
			return nil, fmt.Errorf("operator %s not defined on %s", op, t)
		}

	default:
		if (op == token.EQL || op == token.NEQ) && t.Comparable() {
			eq := x.Interface() == y.Interface()
			return eq == (op == token.EQL), nil
		}
		return nil, fmt.Errorf("operator %s not defined on %s", op, t)
	}

	return r.Interface(), nil
}

// unary applies -, +, ! or ^.
func unary(op token.Token, x interface{}) (r interface{}, err error) {
	if c, is := x.(constant.Value); is {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("invalid operation %s%s", op, c)
			}
		}()
		return constant.UnaryOp(op, c, 0), nil
	}

	v := reflect.ValueOf(x)
	if !v.IsValid() {
		return nil, fmt.Errorf("operator %s not defined on nil", op)
	}
	out := reflect.New(v.Type()).Elem()
	switch k := v.Kind(); {
	case op == token.NOT && k == reflect.Bool:
		out.SetBool(!v.Bool())
	case op == token.ADD && numeric(k):
		return x, nil
	case op == token.SUB && reflect.Int <= k && k <= reflect.Int64:
		out.SetInt(-v.Int())
	case op == token.SUB && isFloat(k):
		out.SetFloat(-v.Float())
	case op == token.XOR && reflect.Int <= k && k <= reflect.Int64:
		out.SetInt(^v.Int())
	case op == token.XOR && reflect.Uint <= k && k <= reflect.Uintptr:
		out.SetUint(^v.Uint())
	case op == token.MUL && k == reflect.Ptr:
		if v.IsNil() {
			return nil, errors.New("nil pointer dereference")
		}
		return v.Elem().Interface(), nil
	default:
		return nil, fmt.Errorf("operator %s not defined on %s", op, v.Type())
	}
	return out.Interface(), nil
}

// assignOp maps += and friends to their binary operator.
func assignOp(op token.Token) token.Token {
	switch op {
	case token.INC:
		return token.ADD
	case token.DEC:
		return token.SUB
	}
	if token.ADD_ASSIGN <= op && op <= token.AND_NOT_ASSIGN {
		return op - token.ADD_ASSIGN + token.ADD
	}
	return token.ILLEGAL
}
