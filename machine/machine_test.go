package machine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/mission"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"
)

const loopReturnYAML = `
name: loopReturn
result: int
params:
  - {name: lorem, type: string}
  - {name: ipsum, type: uint16}
  - {name: dolor, type: uint8}
  - {name: tickVar, type: int, tick: true}
body:
  - let: {name: init, type: uint8, value: 255}
  - let:
      name: finalValue
      type: int
      loop:
        label: outer
        suspend: true
        body:
          - let: {name: counter, type: int, mut: true, value: 0}
          - loop:
              label: inner
              suspend: true
              body:
                - do: counter += 1
                - if: counter > 50
                  then:
                    - break: outer
                      value: 42
  - return: finalValue
`

const nestedYAML = `
name: nested
result: int
params:
  - {name: limit, type: int}
body:
  - let: {name: n, type: int, mut: true, value: 0}
  - loop:
      label: outer
      suspend: true
      body:
        - do: emit("outer")
        - loop:
            label: inner
            suspend: true
            body:
              - do: n += 1
              - if: n % 3 == 0
                then:
                  - continue: inner
              - if: n > limit
                then:
                  - break: outer
              - do: emit(n)
  - return: n
`

const childYAML = `
name: child
result: int
params:
  - {name: n, type: int}
  - {name: tickVar, type: int, tick: true}
body:
  - let: {name: i, type: int, mut: true, value: 0}
  - loop:
      label: count
      suspend: true
      body:
        - do: i += 1
        - do: emit(n*10 + i)
        - if: i >= n
          then:
            - break: count
  - return: i
`

const parentYAML = `
name: parent
result: int
params:
  - {name: tickVar, type: int, tick: true}
body:
  - do: emit("start")
  - let:
      name: a
      type: int
      mission: child(2)
  - do: emit("between")
  - let:
      name: b
      type: int
      mission: child(3)
  - return: a + b
`

const countYAML = `
name: count
result: int
params:
  - {name: limit, type: int}
body:
  - let: {name: i, type: int, mut: true, value: 0}
  - loop:
      label: l
      suspend: true
      body:
        - do: i += 1
        - do: emit(i)
        - if: i >= limit
          then:
            - break: l
  - return: i
`

func compile(t testing.TB, docs ...string) *core.Unit {
	var procs []*core.Procedure
	for _, d := range docs {
		ps, err := core.LoadProcedures([]byte(Dedent(d)), "test.yaml")
		if err != nil {
			t.Fatal(err)
		}
		procs = append(procs, ps...)
	}
	u, err := core.Compile(context.Background(), procs, &core.CompileOptions{SkipOpaque: true})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func start(t testing.TB, u *core.Unit, proc string, args map[string]interface{}, opts *Options) *Machine {
	m, err := New(u, proc, args, opts)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

var tick = Tick{"tickVar": 7}

func loopReturnArgs() map[string]interface{} {
	return map[string]interface{}{
		"lorem": "lorem",
		"ipsum": 1,
		"dolor": 2,
	}
}

func TestLoopReturn(t *testing.T) {
	u := compile(t, loopReturnYAML)
	m := start(t, u, "loopReturn", loopReturnArgs(), nil)

	out := mission.NewOutbox()
	for i := 1; i <= 51; i++ {
		if r := m.Step(tick, out); r.Status != mission.InProgress {
			t.Fatalf("step %d: %s", i, r)
		}
	}
	r := m.Step(tick, out)
	if r.Status != mission.Done || r.Value != 42 {
		t.Fatalf("step 52: %s", r)
	}
	for i := 0; i < 3; i++ {
		if r := m.Step(tick, out); r.Status != mission.Outdated {
			t.Fatal(r)
		}
	}
	if out.Len() != 0 {
		t.Fatal(out.Messages)
	}
	if !m.Finished() {
		t.Fatal("not finished")
	}
}

func TestFieldTypes(t *testing.T) {
	u := compile(t, loopReturnYAML)
	m := start(t, u, "loopReturn", loopReturnArgs(), nil)
	m.Step(tick, nil)

	if x, _ := m.Field("init"); x != uint8(255) {
		t.Fatalf("%#v", x)
	}
	if x, _ := m.Field("ipsum"); x != uint16(1) {
		t.Fatalf("%#v", x)
	}
	if x, _ := m.Field("counter"); x != 1 {
		t.Fatalf("%#v", x)
	}
	if m.State() != "State2" {
		t.Fatal(m.State())
	}
}

func TestBadArguments(t *testing.T) {
	u := compile(t, loopReturnYAML)

	args := loopReturnArgs()
	delete(args, "dolor")
	if _, err := New(u, "loopReturn", args, nil); err == nil {
		t.Fatal("missing argument accepted")
	}

	args = loopReturnArgs()
	args["dolor"] = 300
	if _, err := New(u, "loopReturn", args, nil); err == nil {
		t.Fatal("uint8 overflow accepted")
	}

	args = loopReturnArgs()
	args["tickVar"] = 1
	if _, err := New(u, "loopReturn", args, nil); err == nil {
		t.Fatal("tick parameter accepted as an argument")
	}

	if _, err := New(u, "nope", nil, nil); err == nil {
		t.Fatal("unknown procedure")
	}
}

func TestMissingTick(t *testing.T) {
	u := compile(t, loopReturnYAML)
	m := start(t, u, "loopReturn", loopReturnArgs(), nil)
	r := m.Step(Tick{}, nil)
	if r.Status != mission.Failed || !errors.Is(r.Err, ErrMissingTick) {
		t.Fatal(r)
	}
}

func TestNestedLoops(t *testing.T) {
	u := compile(t, nestedYAML)
	m := start(t, u, "nested", map[string]interface{}{"limit": 10}, nil)

	out := mission.NewOutbox()
	steps := 0
	for {
		steps++
		r := m.Step(nil, out)
		if r.Status == mission.InProgress {
			if m.State() != "State2" && m.State() != "State4" {
				t.Fatalf("step %d stopped in %s", steps, m.State())
			}
			continue
		}
		if r.Status != mission.Done || r.Value != 11 {
			t.Fatal(r)
		}
		break
	}
	if steps != 12 {
		t.Fatal(steps)
	}
	if got := fmt.Sprint(out.Messages); got != "[outer 1 2 4 5 7 8 10]" {
		t.Fatal(got)
	}
}

func TestSubMissions(t *testing.T) {
	u := compile(t, childYAML, parentYAML)
	m := start(t, u, "parent", nil, nil)

	out := mission.NewOutbox()
	var r mission.Result[interface{}]
	steps := 0
	for r.Status == mission.InProgress {
		steps++
		before := out.Len()
		r = m.Step(tick, out)

		// The child runs at most one iteration per parent tick.
		children := 0
		for _, x := range out.Messages[before:] {
			if _, is := x.(int); is {
				children++
			}
		}
		if 1 < children {
			t.Fatalf("step %d stepped a child %d times", steps, children)
		}
	}

	if r.Status != mission.Done || r.Value != 5 {
		t.Fatal(r)
	}
	if steps != 8 {
		t.Fatal(steps)
	}
	if got := fmt.Sprint(out.Messages); got != "[start 21 22 between 31 32 33]" {
		t.Fatal(got)
	}
}

func TestSubMissionFailure(t *testing.T) {
	u := compile(t, `
	    name: grumpy
	    params:
	      - {name: tickVar, type: int, tick: true}
	    body:
	      - fail: '"no"'
	`, `
	    name: boss
	    params:
	      - {name: tickVar, type: int, tick: true}
	    body:
	      - mission: grumpy()
	      - do: emit("unreachable")
	`)
	m := start(t, u, "boss", nil, nil)
	out := mission.NewOutbox()
	r := m.Step(tick, out)
	if r.Status != mission.Failed || !strings.Contains(r.Err.Error(), "no") {
		t.Fatal(r)
	}
	if r := m.Step(tick, out); r.Status != mission.Outdated {
		t.Fatal(r)
	}
	if out.Len() != 0 {
		t.Fatal(out.Messages)
	}
}

func TestFailIsTerminal(t *testing.T) {
	u := compile(t, `
	    name: doomed
	    body:
	      - do: emit("before")
	      - loop:
	          label: l
	          suspend: true
	          body:
	            - fail: errorf("gave up after %d", 1)
	`)
	m := start(t, u, "doomed", nil, nil)
	out := mission.NewOutbox()
	r := m.Step(nil, out)
	if r.Status != mission.Failed || !strings.Contains(r.Err.Error(), "gave up after 1") {
		t.Fatal(r)
	}
	n := out.Len()
	for i := 0; i < 5; i++ {
		if r := m.Step(nil, out); r.Status != mission.Outdated {
			t.Fatal(r)
		}
	}
	if out.Len() != n {
		t.Fatal("a finished mission emitted")
	}
}

func TestSnapshotRestore(t *testing.T) {
	u := compile(t, loopReturnYAML)
	m := start(t, u, "loopReturn", loopReturnArgs(), nil)
	for i := 0; i < 10; i++ {
		m.Step(tick, nil)
	}

	js, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseSnapshot(js)
	if err != nil {
		t.Fatal(err)
	}
	if m, err = Restore(u, s, nil); err != nil {
		t.Fatal(err)
	}
	if x, _ := m.Field("counter"); x != 10 {
		t.Fatalf("%#v", x)
	}
	if x, _ := m.Field("dolor"); x != uint8(2) {
		t.Fatalf("%#v", x)
	}

	steps := 0
	for {
		steps++
		if r := m.Step(tick, nil); r.Status != mission.InProgress {
			if r.Status != mission.Done || r.Value != 42 {
				t.Fatal(r)
			}
			break
		}
	}
	if steps != 42 {
		t.Fatal(steps)
	}

	if s, err = m.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if s.State != -1 {
		t.Fatal(s.State)
	}
	if m, err = Restore(u, s, nil); err != nil {
		t.Fatal(err)
	}
	if r := m.Step(tick, nil); r.Status != mission.Outdated {
		t.Fatal(r)
	}
}

func TestSnapshotWithSubMission(t *testing.T) {
	u := compile(t, childYAML, parentYAML)
	m := start(t, u, "parent", nil, nil)
	out := mission.NewOutbox()
	m.Step(tick, out)
	m.Step(tick, out)

	js, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseSnapshot(js)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Subs) != 1 {
		t.Fatal(string(js))
	}
	if m, err = Restore(u, s, nil); err != nil {
		t.Fatal(err)
	}

	var r mission.Result[interface{}]
	for r.Status == mission.InProgress {
		r = m.Step(tick, out)
	}
	if r.Status != mission.Done || r.Value != 5 {
		t.Fatal(r)
	}
	if got := fmt.Sprint(out.Messages); got != "[start 21 22 between 31 32 33]" {
		t.Fatal(got)
	}
}

func TestEnv(t *testing.T) {
	u := compile(t, `
	    name: host
	    result: string
	    params:
	      - {name: key, type: string}
	    body:
	      - let: {name: n, type: int, value: double(21)}
	      - let: {name: v, type: string, value: lookup(key)}
	      - let:
	          names: [q, r]
	          types: [int, int]
	          value: divmod(n, 5)
	      - do: emit(q, r, world.Name)
	      - sprintf("%s=%d", v, n)
	`)
	type world struct {
		Name string
	}
	opts := &Options{
		Env: Env{
			"double": func(x int) int { return 2 * x },
			"lookup": func(k string) (string, error) {
				if k == "" {
					return "", errors.New("empty key")
				}
				return strings.ToUpper(k), nil
			},
			"divmod": func(a, b int) (int, int) { return a / b, a % b },
			"world":  &world{Name: "overworld"},
		},
	}

	out := mission.NewOutbox()
	m := start(t, u, "host", map[string]interface{}{"key": "gold"}, opts)
	r := m.Step(nil, out)
	if r.Status != mission.Done || r.Value != "GOLD=42" {
		t.Fatal(r)
	}
	if got := fmt.Sprint(out.Messages); got != "[8 2 overworld]" {
		t.Fatal(got)
	}

	m = start(t, u, "host", map[string]interface{}{"key": ""}, opts)
	r = m.Step(nil, nil)
	var he *HostError
	if r.Status != mission.Failed || !errors.As(r.Err, &he) || he.Func != "lookup" {
		t.Fatal(r)
	}
}

func TestExpressions(t *testing.T) {
	u := compile(t, `
	    name: exprs
	    body:
	      - let:
	          name: xs
	          type: "[]int"
	          value: append(xs0, 3, 1, 2)
	      - let:
	          name: m
	          type: "map[string]int"
	          value: counts()
	      - do: m["b"] = len(xs)
	      - do: xs[0] = 10
	      - let:
	          name: f
	          type: float64
	          value: float64(xs[1]) / 2
	      - let:
	          name: big
	          type: int
	          value: max(xs[0], xs[1], xs[2])
	      - let:
	          name: small
	          type: int
	          value: min(xs[0], xs[1], xs[2])
	      - let:
	          name: sign
	          type: string
	          if: big > 5
	          then:
	            - '"positive"'
	          else:
	            - '"small"'
	      - let:
	          name: total
	          type: int
	          block:
	            - let: {name: acc, type: int, mut: true, value: 0}
	            - while: acc < 100
	              body:
	                - do: acc += big
	            - acc
	      - let:
	          name: add
	          type: func(int) int
	          closure:
	            params:
	              - {name: z, type: int}
	            result: int
	            body:
	              - return: z + small
	      - do: emit(xs, m["b"], f, big, small, sign, total, add(4), 7 / 2, 1 << 3)
	`)
	opts := &Options{
		Env: Env{
			"xs0":    []int(nil),
			"counts": func() map[string]int { return map[string]int{"a": 1} },
		},
	}
	m := start(t, u, "exprs", nil, opts)
	out := mission.NewOutbox()
	if r := m.Step(nil, out); r.Status != mission.Done {
		t.Fatal(r)
	}
	if got := fmt.Sprint(out.Messages); got != "[[10 1 2] 3 0.5 10 1 positive 100 5 3 8]" {
		t.Fatal(got)
	}
}

func TestMatch(t *testing.T) {
	u := compile(t, `
	    name: dispatch
	    result: string
	    params:
	      - {name: event, type: "map[string]interface{}", tick: true}
	      - {name: code, type: int, tick: true}
	    body:
	      - match: event
	        arms:
	          - pattern: {kind: chat, text: "?text"}
	            body:
	              - do: emit(text)
	          - pattern: {kind: "?k"}
	            guard: k != "noise"
	            body:
	              - do: emit("kind " + k)
	          - default: true
	            body:
	              - do: emit("ignored")
	      - match: code
	        arms:
	          - values: [1, 2]
	            body:
	              - '"low"'
	          - value: 3
	            body:
	              - '"three"'
	          - default: true
	            body:
	              - '"high"'
	`)

	for _, tt := range []struct {
		event map[string]interface{}
		code  int
		emit  string
		value string
	}{
		{map[string]interface{}{"kind": "chat", "text": "hello"}, 2, "hello", "low"},
		{map[string]interface{}{"kind": "block"}, 3, "kind block", "three"},
		{map[string]interface{}{"kind": "noise"}, 9, "ignored", "high"},
	} {
		m := start(t, u, "dispatch", nil, nil)
		out := mission.NewOutbox()
		r := m.Step(Tick{"event": tt.event, "code": tt.code}, out)
		if r.Status != mission.Done || r.Value != tt.value {
			t.Fatal(r)
		}
		if len(out.Messages) != 1 || out.Messages[0] != tt.emit {
			t.Fatal(out.Messages)
		}
	}
}

// script is an interpreter for tests.  Its code names a binding to
// emit and return.
type script struct{}

func (script) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	s, is := code.(string)
	if !is {
		return nil, fmt.Errorf("bad code %T", code)
	}
	return strings.TrimSpace(s), nil
}

func (script) Exec(ctx context.Context, env *core.ScriptEnv, code interface{}, compiled interface{}) (interface{}, error) {
	name := compiled.(string)
	x := env.Bindings[name]
	env.Emit(x)
	if err := env.Set("seen", true); err != nil {
		return nil, err
	}
	return x, nil
}

func TestOpaque(t *testing.T) {
	u := compile(t, `
	    name: scripted
	    interpreter: test
	    result: int
	    params:
	      - {name: tickVar, type: int, tick: true}
	    body:
	      - let: {name: seen, type: bool, mut: true}
	      - let: {name: x, type: int, js: tickVar}
	      - do: emit(seen)
	      - x
	`)
	opts := &Options{
		Interpreters: core.InterpretersMap{"test": script{}},
	}
	m := start(t, u, "scripted", nil, opts)
	out := mission.NewOutbox()
	r := m.Step(tick, out)
	if r.Status != mission.Done || r.Value != 7 {
		t.Fatal(r)
	}
	if got := fmt.Sprint(out.Messages); got != "[7 true]" {
		t.Fatal(got)
	}
}

func TestRuntimeErrorFails(t *testing.T) {
	u := compile(t, `
	    name: broken
	    body:
	      - let: {name: d, type: int, value: 0}
	      - do: emit(1 / d)
	`)
	m := start(t, u, "broken", nil, nil)
	r := m.Step(nil, nil)
	if r.Status != mission.Failed || !errors.Is(r.Err, ErrDivideByZero) {
		t.Fatal(r)
	}
	if r := m.Step(nil, nil); r.Status != mission.Outdated {
		t.Fatal(r)
	}
}

func TestSlot(t *testing.T) {
	u := compile(t, countYAML)
	s := mission.NewSlot[Tick]()
	s.Replace(start(t, u, "count", map[string]interface{}{"limit": 3}, nil))

	out := mission.NewOutbox()
	for s.Busy() {
		s.Step(nil, out)
	}
	if r := s.Last(); r.Status != mission.Done || r.Value != 3 {
		t.Fatal(r)
	}
	if out.Len() != 3 {
		t.Fatal(out.Messages)
	}
}
