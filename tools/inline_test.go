package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInline(t *testing.T) {
	input := `
I like %inline("tacos"), and
I also like %inline("queso").
Both are delicious.
`
	want := `
I like TACOS, and
I also like QUESO.
Both are delicious.
`

	find := func(name string) ([]byte, error) {
		return []byte(strings.ToUpper(name)), nil
	}

	got, err := Inline([]byte(input), find)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("got %s", got)
	}
}

func TestInlineNested(t *testing.T) {
	srcs := map[string]string{
		"a": `[%inline("b")]`,
		"b": "b",
		"c": `%inline("d")`,
		"d": `%inline("c")`,
	}
	find := func(name string) ([]byte, error) {
		s, have := srcs[name]
		if !have {
			return nil, fmt.Errorf("no %s", name)
		}
		return []byte(s), nil
	}

	got, err := Inline([]byte(`%inline("a")!`), find)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[b]!" {
		t.Fatal(string(got))
	}

	if _, err := Inline([]byte(`%inline("c")`), find); err == nil {
		t.Fatal("cycle accepted")
	}
	if _, err := Inline([]byte(`%inline("e")`), find); err == nil {
		t.Fatal("missing name accepted")
	}
}

func TestReadFileWithInlines(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "guard.js"), []byte("return n > 1;"), 0644); err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(dir, "proc.yaml")
	if err := os.WriteFile(filename, []byte(`js: '%inline("guard.js")'`), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFileWithInlines(filename)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "js: 'return n > 1;'" {
		t.Fatal(string(got))
	}
}
