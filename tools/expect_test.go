package tools

import (
	"context"
	"testing"

	"github.com/Mubelotix/minecraft-bot/core"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"
)

const countSession = `
doc: Count to two
proc: count
args:
  limit: 2
steps:
  - status: InProgress
    outputSet:
      - pattern: 1
  - status: InProgress
    exact: true
    outputSet:
      - pattern: 2
  - status: Done
    value: 2
  - status: Outdated
`

func TestSession(t *testing.T) {
	u := compile(t, countYAML)
	s, err := ParseSession([]byte(Dedent(countSession)))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Steps) != 4 {
		t.Fatal(JS(s))
	}
	if err := s.Run(context.Background(), u, nil); err != nil {
		t.Fatal(err)
	}
}

func TestSessionFailure(t *testing.T) {
	u := compile(t, countYAML)
	s := &Session{
		Proc: "count",
		Args: map[string]interface{}{"limit": 2},
		Steps: []Expect{
			{Status: "InProgress"},
			{Doc: "too soon", Status: "Done"},
		},
	}
	err := s.Run(context.Background(), u, nil)
	ef, is := err.(*ExpectationFailed)
	if !is {
		t.Fatal(err)
	}
	if ef.Step != 1 || ef.Doc != "too soon" {
		t.Fatal(ef)
	}

	s.Steps = []Expect{{OutputSet: []Output{{Pattern: 7}}}}
	if err := s.Run(context.Background(), u, nil); err == nil {
		t.Fatal("missing output accepted")
	}
}

// bigEnough is a guard interpreter that accepts bindings with n > 1.
type bigEnough struct{}

func (bigEnough) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	return nil, nil
}

func (bigEnough) Exec(ctx context.Context, env *core.ScriptEnv, code interface{}, compiled interface{}) (interface{}, error) {
	n, _ := env.Bindings["n"].(float64)
	return 1 < n, nil
}

func TestSessionGuard(t *testing.T) {
	u := compile(t, countYAML)
	s := &Session{
		Proc:         "count",
		Args:         map[string]interface{}{"limit": 3},
		Interpreters: core.InterpretersMap{"test": bigEnough{}},
		Steps: []Expect{
			{},
			{OutputSet: []Output{{Pattern: "?n", Guard: "n > 1", Interpreter: "test"}}},
		},
	}
	if err := s.Run(context.Background(), u, nil); err != nil {
		t.Fatal(err)
	}
	if b := s.Steps[1].OutputSet[0].Bindings; b["?n"] != float64(2) {
		t.Fatal(b)
	}

	s.Steps = []Expect{{OutputSet: []Output{{Pattern: "?n", Guard: "n > 1", Interpreter: "test"}}}}
	if err := s.Run(context.Background(), u, nil); err == nil {
		t.Fatal("guard ignored")
	}
}
