package machine

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"reflect"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/mission"
)

var builtins = map[string]func(r *run, args []interface{}) (interface{}, error){
	"emit": func(r *run, args []interface{}) (interface{}, error) {
		r.out.Emit(settleAll(args)...)
		return nil, nil
	},
	"len": func(r *run, args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("len takes one argument")
		}
		v := reflect.ValueOf(settle(args[0]))
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
			return v.Len(), nil
		case reflect.Invalid:
			return 0, nil
		}
		return nil, fmt.Errorf("invalid argument %T for len", args[0])
	},
	"sprintf": func(r *run, args []interface{}) (interface{}, error) {
		format, err := formatArg(args)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf(format, settleAll(args[1:])...), nil
	},
	"errorf": func(r *run, args []interface{}) (interface{}, error) {
		format, err := formatArg(args)
		if err != nil {
			return nil, err
		}
		return fmt.Errorf(format, settleAll(args[1:])...), nil
	},
	"ok": func(r *run, args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("ok takes one argument")
		}
		return mission.OK(args[0]) && !isNil(args[0]), nil
	},
	"err": func(r *run, args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("err takes one argument")
		}
		return mission.ErrText(args[0]), nil
	},
	"append": func(r *run, args []interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, errors.New("append needs a slice")
		}
		s := reflect.ValueOf(args[0])
		if !s.IsValid() {
			s = reflect.ValueOf([]interface{}{})
		}
		if s.Kind() != reflect.Slice {
			return nil, fmt.Errorf("can't append to %T", args[0])
		}
		et := s.Type().Elem()
		for _, x := range args[1:] {
			y, err := coerce(x, et)
			if err != nil {
				return nil, err
			}
			s = reflect.Append(s, valueOf(y, et))
		}
		return s.Interface(), nil
	},
	"min": func(r *run, args []interface{}) (interface{}, error) {
		return extremum(token.LSS, args)
	},
	"max": func(r *run, args []interface{}) (interface{}, error) {
		return extremum(token.GTR, args)
	},
}

func formatArg(args []interface{}) (string, error) {
	if len(args) == 0 {
		return "", errors.New("missing format")
	}
	format, is := settle(args[0]).(string)
	if !is {
		return "", fmt.Errorf("format %v isn't a string", args[0])
	}
	return format, nil
}

func extremum(op token.Token, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("needs at least one argument")
	}
	acc := args[0]
	for _, x := range args[1:] {
		better, err := binary(op, x, acc)
		if err != nil {
			return nil, err
		}
		if better == true {
			acc = x
		}
	}
	return acc, nil
}

func (r *run) call(sc *scope, x *core.Call) (interface{}, *flow, error) {
	fn, fl, err := r.eval(sc, x.Fun)
	if err != nil || fl != nil {
		return nil, fl, err
	}
	args, fl, err := r.evals(sc, x.Args)
	if err != nil || fl != nil {
		return nil, fl, err
	}

	switch vv := fn.(type) {
	case builtin:
		v, err := builtins[string(vv)](r, args)
		return v, nil, err
	case typeName:
		if len(args) != 1 {
			return nil, nil, fmt.Errorf("conversion to %s takes one argument", vv.t)
		}
		v, err := convert(args[0], vv.t)
		return v, nil, err
	case *closure:
		v, err := r.callClosure(vv, args)
		return v, nil, err
	}

	name := core.FormatExpr(x.Fun)
	f := reflect.ValueOf(fn)
	if f.Kind() != reflect.Func || f.IsNil() {
		return nil, nil, fmt.Errorf("can't call %s (%T)", name, fn)
	}
	v, err := callHost(name, f, args)
	return v, nil, err
}

func (r *run) callClosure(c *closure, args []interface{}) (interface{}, error) {
	if len(args) != len(c.x.Params) {
		return nil, fmt.Errorf("closure takes %d arguments, not %d", len(c.x.Params), len(args))
	}
	sc := c.sc.child()
	for i, p := range c.x.Params {
		t := r.m.types.lookup(p.Type)
		v, err := coerce(args[i], t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		sc.bind(p.Name, v, t)
	}

	v, fl, err := r.block(sc, c.x.Body)
	if err != nil {
		return nil, err
	}
	if fl != nil {
		if fl.kind != flowReturn {
			return nil, fmt.Errorf("%s escaped a closure", fl.kind)
		}
		v = fl.value
	}
	if c.x.Result == "" {
		return nil, nil
	}
	return coerce(v, r.m.types.lookup(c.x.Result))
}

func callHost(name string, f reflect.Value, args []interface{}) (interface{}, error) {
	t := f.Type()
	n := t.NumIn()
	if t.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("%s takes at least %d arguments, not %d", name, n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("%s takes %d arguments, not %d", name, n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, x := range args {
		var pt reflect.Type
		if t.IsVariadic() && n-1 <= i {
			pt = t.In(n - 1).Elem()
		} else {
			pt = t.In(i)
		}
		v, err := coerce(x, pt)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", name, i, err)
		}
		in[i] = valueOf(v, pt)
	}

	outs := f.Call(in)
	if k := len(outs); 0 < k && t.Out(k-1) == errorType {
		if e := outs[k-1]; !e.IsNil() {
			return nil, &HostError{Func: name, Err: e.Interface().(error)}
		}
		outs = outs[:k-1]
	}

	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0].Interface(), nil
	default:
		acc := make(multi, len(outs))
		for i, o := range outs {
			acc[i] = o.Interface()
		}
		return acc, nil
	}
}

// convert is an explicit conversion like float64(n).
func convert(x interface{}, t reflect.Type) (interface{}, error) {
	if c, is := x.(constant.Value); is {
		if t.Kind() == reflect.String && c.Kind() == constant.Int {
			return nil, fmt.Errorf("conversion from %s to string", c)
		}
		if isFloat(t.Kind()) || c.Kind() != constant.Float {
			return representable(c, t)
		}
		x = settle(c)
	}
	v := reflect.ValueOf(x)
	if v.IsValid() && v.Type().ConvertibleTo(t) {
		if v.Kind() != reflect.String && t.Kind() == reflect.String && numeric(v.Kind()) {
			return nil, fmt.Errorf("conversion from %s to string", v.Type())
		}
		return v.Convert(t).Interface(), nil
	}
	return coerce(x, t)
}
