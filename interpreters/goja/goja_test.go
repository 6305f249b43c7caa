package goja

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"
)

func run(t *testing.T, i *Interpreter, env *core.ScriptEnv, src interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	compiled, err := i.Compile(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	return i.Exec(ctx, env, src, compiled)
}

func TestExecValue(t *testing.T) {
	x, err := run(t, NewInterpreter(), nil, `return 1 + 2;`)
	if err != nil {
		t.Fatal(err)
	}
	if x != int64(3) {
		t.Fatalf("%#v", x)
	}
}

func TestExecUndefined(t *testing.T) {
	x, err := run(t, NewInterpreter(), nil, `var y = 1;`)
	if err != nil {
		t.Fatal(err)
	}
	if x != nil {
		t.Fatalf("%#v", x)
	}
}

func TestExecBindings(t *testing.T) {
	var setName string
	var setValue interface{}
	env := &core.ScriptEnv{
		Bindings: map[string]interface{}{"n": 4},
		Set: func(name string, x interface{}) error {
			setName, setValue = name, x
			return nil
		},
	}
	x, err := run(t, NewInterpreter(), env, `_.set("seen", true); return _.bindings.n * 2 + n;`)
	if err != nil {
		t.Fatal(err)
	}
	if x != int64(12) {
		t.Fatalf("%#v", x)
	}
	if setName != "seen" || setValue != true {
		t.Fatal(setName, setValue)
	}
}

func TestExecOut(t *testing.T) {
	out := mission.NewOutbox()
	env := &core.ScriptEnv{
		Emit: func(x interface{}) {
			out.Emit(x)
		},
	}
	if _, err := run(t, NewInterpreter(), env, `_.out({kind: "chat", text: "hi"}); return null;`); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 1 {
		t.Fatal(out.Messages)
	}
	m, is := out.Messages[0].(map[string]interface{})
	if !is || m["kind"] != "chat" || m["text"] != "hi" {
		t.Fatalf("%#v", out.Messages[0])
	}
}

func TestExecTimeout(t *testing.T) {
	i := NewInterpreter()
	i.Testing = true
	_, err := run(t, i, nil, `for (;;) { _.sleep(10); }`)
	if err == nil {
		t.Fatal("didn't time out")
	}
	if err.Error() != InterruptedMessage {
		t.Fatalf("surprised by %q", err)
	}
}

func TestExecError(t *testing.T) {
	if _, err := run(t, NewInterpreter(), nil, `return likes + tacos;`); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestCompileError(t *testing.T) {
	if _, err := NewInterpreter().Compile(context.Background(), `return (;`); err == nil {
		t.Fatal("didn't protest")
	}
	if _, err := NewInterpreter().Compile(context.Background(), 42); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestCronNext(t *testing.T) {
	x, err := run(t, NewInterpreter(), nil, `return _.cronNext("* 0 * * *");`)
	if err != nil {
		t.Fatal(err)
	}
	s, is := x.(string)
	if !is {
		t.Fatalf("%#v", x)
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, NewInterpreter(), nil, `return _.cronNext("bad");`); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestMatch(t *testing.T) {
	x, err := run(t, NewInterpreter(), nil, `return _.match({kind: "?k"}, {kind: "chat", text: "hi"});`)
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(x); got != "[map[k:chat]]" {
		t.Fatal(got)
	}
}

func TestRequires(t *testing.T) {
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"twice": `function twice(x) { return 2 * x; }`,
	})
	src := map[string]interface{}{
		"code":     `return twice(21);`,
		"requires": []interface{}{"twice"},
	}
	x, err := run(t, i, nil, src)
	if err != nil {
		t.Fatal(err)
	}
	if x != int64(42) {
		t.Fatalf("%#v", x)
	}

	src["requires"] = "nope"
	if _, err := i.Compile(context.Background(), src); err == nil {
		t.Fatal("undefined library accepted")
	}
}

func TestMachineOpaque(t *testing.T) {
	procs, err := core.LoadProcedures([]byte(Dedent(`
	    name: scripted
	    result: int
	    interpreter: goja
	    params:
	      - {name: tickVar, type: int, tick: true}
	    body:
	      - let: {name: seen, type: bool, mut: true}
	      - let:
	          name: x
	          type: int
	          js: |
	            _.set("seen", true);
	            _.out(tickVar);
	            return tickVar * 2;
	      - do: emit(seen)
	      - x
	`)), "test.yaml")
	if err != nil {
		t.Fatal(err)
	}
	is := core.InterpretersMap{"goja": NewInterpreter()}
	u, err := core.Compile(context.Background(), procs, &core.CompileOptions{Interpreters: is})
	if err != nil {
		t.Fatal(err)
	}

	m, err := machine.New(u, "scripted", nil, &machine.Options{Interpreters: is})
	if err != nil {
		t.Fatal(err)
	}
	out := mission.NewOutbox()
	r := m.Step(machine.Tick{"tickVar": 7}, out)
	if r.Status != mission.Done || r.Value != 14 {
		t.Fatal(r)
	}
	if got := fmt.Sprint(out.Messages); got != "[7 true]" {
		t.Fatal(got)
	}
}
