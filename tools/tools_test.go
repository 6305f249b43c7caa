package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mubelotix/minecraft-bot/core"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"
)

const countYAML = `
name: count
doc: Counts to *limit*, one number per tick.
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

func compile(t *testing.T, docs ...string) *core.Unit {
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

func program(t *testing.T, doc, name string) *core.Program {
	p, err := compile(t, doc).Program(name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEdges(t *testing.T) {
	es := Edges(program(t, countYAML, "count"))
	want := "[0 -next-> 1 1 -yield-> 1 1 -break-> 2 l 2 -done-> -1]"
	if got := fmt.Sprint(es); got != want {
		t.Fatal(got)
	}
}

func TestDot(t *testing.T) {
	var b bytes.Buffer
	if err := Dot(program(t, countYAML, "count"), &b, nil); err != nil {
		t.Fatal(err)
	}
	s := b.String()
	for _, want := range []string{
		`digraph "count" {`,
		`s1 -> s2 [ style="dashed" color="#2d93ad" label = <break l> ]`,
		`s0 -> s1 [ style="solid"`,
		`s2 -> end`,
		"i += 1",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("no %q in\n%s", want, s)
		}
	}
}

func TestMermaid(t *testing.T) {
	var b bytes.Buffer
	if err := Mermaid(program(t, countYAML, "count"), &b, nil); err != nil {
		t.Fatal(err)
	}
	s := b.String()
	for _, want := range []string{
		"graph TB\n",
		"s1 -.->|break l| s2",
		"s0 -->|next| s1",
		"s2 -->|done| fin",
		"style s1 fill:#bcf2db",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("no %q in\n%s", want, s)
		}
	}
}

func TestAnalysis(t *testing.T) {
	a, err := Analyze(program(t, countYAML, "count"))
	if err != nil {
		t.Fatal(err)
	}
	if a.StateCount != 3 || a.Edges != 4 || a.Yields != 2 {
		t.Fatal(JS(a))
	}
	if len(a.Loops) != 1 || a.Loops[0] != "l" {
		t.Fatal(a.Loops)
	}
	if len(a.Finals) != 1 || a.Finals[0] != "State2" {
		t.Fatal(a.Finals)
	}
	if len(a.Unreachable) != 0 || len(a.Errors) != 0 {
		t.Fatal(JS(a))
	}
}

func TestRenderProgramPage(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "count.yaml")
	if err := os.WriteFile(filename, []byte(Dedent(countYAML)), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("withoutGraph", func(t *testing.T) {
		var b bytes.Buffer
		if err := ReadAndRenderProgramPage(filename, "", []string{"program.css"}, &b, false); err != nil {
			t.Fatal(err)
		}
		s := b.String()
		if !strings.Contains(s, "<em>limit</em>") {
			t.Fatal(s)
		}
		if !strings.Contains(s, `<a href="#State2">`) {
			t.Fatal(s)
		}
		if strings.Contains(s, "mermaid") {
			t.Fatal(s)
		}
	})

	t.Run("withGraph", func(t *testing.T) {
		var b bytes.Buffer
		if err := ReadAndRenderProgramPage(filename, "count", nil, &b, true); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(b.String(), `<div class="mermaid">`) {
			t.Fatal(b.String())
		}
	})

	if err := ReadAndRenderProgramPage(filename, "nope", nil, &bytes.Buffer{}, false); err == nil {
		t.Fatal("unknown procedure accepted")
	}
}
