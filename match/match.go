/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package match implements the structural matcher behind pattern arms.
//
// A pattern is a generic value: nil, bool, number, string,
// []interface{} or map[string]interface{}.  Strings starting with '?'
// are variables:
//
//	?x   binds x, or checks the existing binding for x
//	??x  like ?x, but a map property with this value may be absent
//	?_   matches anything without binding (so does a bare ?)
//	?*   as the last element of an array, matches any remaining elements
//
// A map pattern matches a map that has at least the pattern's
// properties.  Arrays match element by element.  Numbers compare by
// value regardless of their Go type.
package match

import (
	"fmt"
	"reflect"
	"strings"
)

// Bindings is a map from variables (strings starting with a '?') to
// their values.
type Bindings map[string]interface{}

func NewBindings() Bindings {
	return make(Bindings, 8)
}

// Extend adds the binding; modifies and returns the Bindings.
func (bs Bindings) Extend(p string, v interface{}) Bindings {
	bs[p] = v
	return bs
}

// Copy makes a shallow copy of the Bindings.
func (bs Bindings) Copy() Bindings {
	acc := make(Bindings, len(bs))
	for k, v := range bs {
		acc[k] = v
	}
	return acc
}

// Strip returns the bindings keyed by variable names without the
// leading '?'.
func (bs Bindings) Strip() map[string]interface{} {
	acc := make(map[string]interface{}, len(bs))
	for k, v := range bs {
		acc[strings.TrimLeft(k, "?")] = v
	}
	return acc
}

// IsVariable reports if the string represents a pattern variable.
func IsVariable(s string) bool {
	return strings.HasPrefix(s, "?")
}

// IsAnonymous reports whether s matches without binding.
func IsAnonymous(s string) bool {
	return s == "?" || s == "?_"
}

// IsOptional reports whether x is a ??var.
func IsOptional(x interface{}) bool {
	s, is := x.(string)
	return is && strings.HasPrefix(s, "??")
}

const rest = "?*"

// UnsupportedValue is returned when a pattern or fact holds something
// that isn't a generic value.
type UnsupportedValue struct {
	Value interface{}
}

func (e *UnsupportedValue) Error() string {
	return fmt.Sprintf("can't match %#v (%T)", e.Value, e.Value)
}

// Match attempts to match the pattern against the fact, extending
// the given bindings.  The result is empty when there's no match and
// otherwise holds one set of bindings.  The input bindings aren't
// modified.
func Match(pattern, fact interface{}, bs Bindings) ([]Bindings, error) {
	acc := bs.Copy()
	ok, err := match(pattern, fact, acc)
	if err != nil || !ok {
		return nil, err
	}
	return []Bindings{acc}, nil
}

func match(p, f interface{}, bs Bindings) (bool, error) {
	switch vv := p.(type) {
	case nil:
		return f == nil, nil
	case string:
		if !IsVariable(vv) {
			s, is := f.(string)
			return is && s == vv, nil
		}
		return bind(vv, f, bs)
	case bool:
		b, is := f.(bool)
		return is && b == vv, nil
	case map[string]interface{}:
		m, is := f.(map[string]interface{})
		if !is {
			return false, nil
		}
		return matchMap(vv, m, bs)
	case []interface{}:
		xs, is := f.([]interface{})
		if !is {
			return false, nil
		}
		return matchArray(vv, xs, bs)
	}
	x, is := number(p)
	if !is {
		return false, &UnsupportedValue{Value: p}
	}
	y, is := number(f)
	return is && x == y, nil
}

func bind(v string, f interface{}, bs Bindings) (bool, error) {
	if IsAnonymous(v) {
		return true, nil
	}
	if v == rest {
		return false, fmt.Errorf("%s only works at the end of an array", rest)
	}
	key := "?" + strings.TrimLeft(v, "?")
	if have, bound := bs[key]; bound {
		return equal(have, f)
	}
	bs[key] = f
	return true, nil
}

func matchMap(p, m map[string]interface{}, bs Bindings) (bool, error) {
	for k, pv := range p {
		if IsVariable(k) {
			return false, fmt.Errorf("property %q can't be a variable", k)
		}
		fv, have := m[k]
		if !have {
			if IsOptional(pv) {
				continue
			}
			return false, nil
		}
		ok, err := match(pv, fv, bs)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchArray(p, xs []interface{}, bs Bindings) (bool, error) {
	n := len(p)
	open := 0 < n && p[n-1] == rest
	if open {
		n--
		if len(xs) < n {
			return false, nil
		}
	} else if len(xs) != n {
		return false, nil
	}
	for i := 0; i < n; i++ {
		ok, err := match(p[i], xs[i], bs)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// equal compares two bound values.
func equal(x, y interface{}) (bool, error) {
	if a, is := number(x); is {
		b, is := number(y)
		return is && a == b, nil
	}
	switch vv := x.(type) {
	case []interface{}:
		ys, is := y.([]interface{})
		if !is || len(vv) != len(ys) {
			return false, nil
		}
		for i := range vv {
			if ok, err := equal(vv[i], ys[i]); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case map[string]interface{}:
		m, is := y.(map[string]interface{})
		if !is || len(vv) != len(m) {
			return false, nil
		}
		for k, v := range vv {
			w, have := m[k]
			if !have {
				return false, nil
			}
			if ok, err := equal(v, w); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return reflect.DeepEqual(x, y), nil
}

func number(x interface{}) (float64, bool) {
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}
