package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

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

const countSession = `
proc: count
args:
  limit: 2
steps:
  - status: InProgress
    outputSet:
      - pattern: 1
  - status: Done
    value: 2
`

func writeFile(t *testing.T, dir, name, src string) string {
	filename := filepath.Join(dir, name)
	if err := os.WriteFile(filename, []byte(Dedent(src)), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompile(t *testing.T) {
	filename := writeFile(t, t.TempDir(), "count.yaml", countYAML)

	out, err := execute(t, "", "compile", "-f", "yaml", filename)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"name: count", "name: State1", "yield: true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("no %q in %s", want, out)
		}
	}

	if _, err := execute(t, "", "compile", "-p", "nope", filename); err == nil {
		t.Fatal("unknown procedure accepted")
	}
	if _, err := execute(t, "", "compile", "-f", "xml", filename); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestGraphAndAnalyze(t *testing.T) {
	filename := writeFile(t, t.TempDir(), "count.yaml", countYAML)

	out, err := execute(t, "", "graph", "-f", "mermaid", filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "s1 -.->|break l| s2") {
		t.Fatal(out)
	}

	out, err = execute(t, "", "graph", filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, `digraph "count" {`) {
		t.Fatal(out)
	}

	out, err = execute(t, "", "analyze", filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"stateCount": 3`) {
		t.Fatal(out)
	}
}

func TestGenAndHTML(t *testing.T) {
	dir := t.TempDir()
	filename := writeFile(t, dir, "count.yaml", countYAML)

	out, err := execute(t, "", "gen", "--package", "bots", filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "// Code generated by mbot gen. DO NOT EDIT.") || !strings.Contains(out, "package bots") {
		t.Fatal(out)
	}

	target := filepath.Join(dir, "count.go")
	if _, err := execute(t, "", "gen", "-o", target, filename); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "", "html", "--graph=false", filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<em>limit</em>") {
		t.Fatal(out)
	}
}

func TestExpect(t *testing.T) {
	dir := t.TempDir()
	filename := writeFile(t, dir, "count.yaml", countYAML)
	session := writeFile(t, dir, "count.session.yaml", countSession)

	out, err := execute(t, "", "expect", session, filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "ok ") {
		t.Fatal(out)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	filename := writeFile(t, dir, "count.yaml", countYAML)

	out, err := execute(t, "", "run",
		"--tick", "1ms",
		"--idle-exit",
		"--crew", "simpsons",
		"--db", filepath.Join(dir, "missions.db"),
		"-s", `count {"limit":2}`,
		filename)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"emit 1\n", "emit 2\n", `"status":"Done","value":2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("no %q in %s", want, out)
		}
	}
}

func TestParseStart(t *testing.T) {
	proc, args, err := parseStart(` count {"limit":3} `)
	if err != nil {
		t.Fatal(err)
	}
	if proc != "count" || args["limit"] != float64(3) {
		t.Fatal(proc, args)
	}
	if proc, args, _ = parseStart("count"); proc != "count" || args != nil {
		t.Fatal(proc, args)
	}
	if _, _, err = parseStart("count {"); err == nil {
		t.Fatal("bad arguments accepted")
	}
}
