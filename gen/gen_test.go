package gen

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mubelotix/minecraft-bot/core"
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
  - return: a * 2
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

func generate(t *testing.T, docs ...string) (string, *ast.File) {
	src, err := Generate(compile(t, docs...), nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := parser.ParseFile(token.NewFileSet(), "missions.go", src, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	return string(src), f
}

// typeCheck checks the generated file against the real mission
// package, which is imported from source.
func typeCheck(t *testing.T, src string) *types.Package {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "missions.go", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	pkg, err := conf.Check("missions", fset, []*ast.File{f}, nil)
	if err != nil {
		t.Fatalf("%s\n%s", err, src)
	}
	return pkg
}

const loopReturnDriver = `package missions

import (
	"testing"

	"github.com/Mubelotix/minecraft-bot/mission"
)

func TestLoopReturn(t *testing.T) {
	m := NewLoopReturnMission("lorem", 1, 2)
	out := mission.NewOutbox()
	for i := 1; i <= 51; i++ {
		if r := m.Step(i, out); r.Status != mission.InProgress {
			t.Fatal(i, r)
		}
	}
	if r := m.Step(52, out); r.Status != mission.Done || r.Value != 42 {
		t.Fatal(r)
	}
	if r := m.Step(53, out); r.Status != mission.Outdated {
		t.Fatal(r)
	}
	if out.Len() != 0 {
		t.Fatal(out.Len())
	}
}
`

func decls(f *ast.File) map[string]ast.Decl {
	acc := make(map[string]ast.Decl)
	for _, d := range f.Decls {
		switch dd := d.(type) {
		case *ast.FuncDecl:
			name := dd.Name.Name
			if dd.Recv != nil {
				var recv string
				switch t := dd.Recv.List[0].Type.(type) {
				case *ast.StarExpr:
					recv = t.X.(*ast.Ident).Name
				case *ast.Ident:
					recv = t.Name
				}
				name = recv + "." + name
			}
			acc[name] = dd
		case *ast.GenDecl:
			for _, s := range dd.Specs {
				if ts, is := s.(*ast.TypeSpec); is {
					acc[ts.Name.Name] = dd
				}
			}
		}
	}
	return acc
}

func TestGenerateLoopReturn(t *testing.T) {
	src, f := generate(t, loopReturnYAML)

	if !strings.HasPrefix(src, "// Code generated by mbot gen. DO NOT EDIT.") {
		t.Fatal(src[:80])
	}
	if f.Name.Name != "missions" {
		t.Fatal(f.Name.Name)
	}

	ds := decls(f)
	for _, name := range []string{
		"LoopReturnMission",
		"loopReturnState",
		"NewLoopReturnMission",
		"LoopReturnMission.Step",
		"LoopReturnMission.Finished",
		"loopReturnState0", "loopReturnState0.step",
		"loopReturnState4", "loopReturnState4.step",
	} {
		if _, have := ds[name]; !have {
			t.Fatalf("no %s in\n%s", name, src)
		}
	}
	if _, have := ds["loopReturnState5"]; have {
		t.Fatal("too many states")
	}

	ctor := ds["NewLoopReturnMission"].(*ast.FuncDecl)
	if n := ctor.Type.Params.NumFields(); n != 3 {
		t.Fatal(n)
	}
	step := ds["LoopReturnMission.Step"].(*ast.FuncDecl)
	if n := step.Type.Params.NumFields(); n != 2 {
		t.Fatal(n)
	}

	for _, want := range []string{
		"counter += 1",
		"if counter > 50 {",
		"finalValue: 42",
		"mission.Complete[int](finalValue)",
		"func (m *LoopReturnMission) Step(tickVar int, out *mission.Outbox) (r mission.Result[int])",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("no %q in\n%s", want, src)
		}
	}
}

func TestGeneratedLoopReturnTypeChecks(t *testing.T) {
	src, _ := generate(t, loopReturnYAML)
	pkg := typeCheck(t, src)

	ctor, is := pkg.Scope().Lookup("NewLoopReturnMission").(*types.Func)
	if !is {
		t.Fatal("no constructor")
	}
	sig := ctor.Type().(*types.Signature)
	if got := sig.Params().String(); got != "(lorem string, ipsum uint16, dolor uint8)" {
		t.Fatal(got)
	}
	obj, _, _ := types.LookupFieldOrMethod(sig.Results().At(0).Type(), true, pkg, "Step")
	step, is := obj.(*types.Func)
	if !is {
		t.Fatal("no Step")
	}
	res := step.Type().(*types.Signature).Results().At(0).Type().String()
	if res != "github.com/Mubelotix/minecraft-bot/mission.Result[int]" {
		t.Fatal(res)
	}
}

func TestGeneratedSubMissionsTypeCheck(t *testing.T) {
	src, _ := generate(t, childYAML, parentYAML)
	typeCheck(t, src)
}

// TestGeneratedLoopReturnRuns builds the generated code in a package
// next to this one and steps it to completion.
func TestGeneratedLoopReturnRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a package")
	}
	goTool, err := exec.LookPath("go")
	if err != nil {
		t.Skip("no go tool")
	}
	src, _ := generate(t, loopReturnYAML)

	dir, err := os.MkdirTemp(".", "generated")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err := os.WriteFile(filepath.Join(dir, "missions.go"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "missions_test.go"), []byte(loopReturnDriver), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(goTool, "test", "-count=1", ".")
	cmd.Dir = dir
	if bs, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("%s\n%s", err, bs)
	}
}

func TestGenerateSubMissions(t *testing.T) {
	src, f := generate(t, childYAML, parentYAML)

	ds := decls(f)
	for _, name := range []string{"ChildMission", "ParentMission", "NewChildMission", "NewParentMission"} {
		if _, have := ds[name]; !have {
			t.Fatalf("no %s", name)
		}
	}
	for _, want := range []string{
		"NewChildMission(2)",
		"sub1 *ChildMission",
		"sub1.Step(tickVar, out)",
		"a: sub1Result.Value",
		"mission.ErrOutdated",
		`out.Emit("start")`,
		"out.Emit(n*10 + i)",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("no %q in\n%s", want, src)
		}
	}
}

func TestGenerateExpressions(t *testing.T) {
	src, _ := generate(t, `
	    name: exprs
	    result: string
	    params:
	      - {name: code, type: int, tick: true}
	    body:
	      - let: {name: x, type: int, value: (1 + 2) * 3}
	      - let:
	          name: label
	          type: string
	          match: code
	          arms:
	            - values: [1, 2]
	              body:
	                - '"low"'
	            - default: true
	              body:
	                - sprintf("%d", code)
	      - let:
	          name: add
	          type: func(int) int
	          closure:
	            params:
	              - {name: z, type: int}
	            result: int
	            body:
	              - return: z + x
	      - if: ok(label)
	        then:
	          - do: emit(add(1))
	      - label
	`)
	for _, want := range []string{
		"var x int = (1 + 2) * 3",
		"subj1 == 1 || subj1 == 2",
		`label = "low"`,
		`label = fmt.Sprintf("%d", code)`,
		"return z + x",
		"if mission.OK(label) {",
		"out.Emit(add(1))",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("no %q in\n%s", want, src)
		}
	}
}

func TestGenerateInterpreterOnly(t *testing.T) {
	u := compile(t, `
	    name: picky
	    params:
	      - {name: event, type: "map[string]interface{}", tick: true}
	    body:
	      - match: event
	        arms:
	          - pattern: {kind: "?k"}
	            body:
	              - do: emit(k)
	      - let: {name: n, type: int, js: "1 + 1"}
	`)
	_, err := Generate(u, nil)
	ds, is := core.AsDiagnostics(err)
	if !is {
		t.Fatal(err)
	}
	if len(ds.Errors()) != 2 {
		t.Fatal(ds)
	}
	for _, d := range ds.Errors() {
		if d.Proc != "picky" || !strings.Contains(d.Message, "interpreter") {
			t.Fatal(d)
		}
	}
}

func TestReservedNames(t *testing.T) {
	u := compile(t, `
	    name: clash
	    params:
	      - {name: out, type: int}
	    body:
	      - do: emit(out)
	`)
	if _, err := Generate(u, nil); err == nil {
		t.Fatal("reserved parameter name accepted")
	}
}

func TestGoName(t *testing.T) {
	for _, tc := range []struct {
		in       string
		exported bool
		want     string
	}{
		{"loopReturn", true, "LoopReturn"},
		{"loopReturn", false, "loopReturn"},
		{"mine-ore", true, "MineOre"},
		{"Mine_ore", false, "mineOre"},
	} {
		if got := goName(tc.in, tc.exported); got != tc.want {
			t.Fatalf("%s: %s", tc.in, got)
		}
	}
}
