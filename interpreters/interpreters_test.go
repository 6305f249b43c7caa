package interpreters

import (
	"context"
	"testing"

	"github.com/Mubelotix/minecraft-bot/core"
)

func TestStandard(t *testing.T) {
	is := Standard()
	for _, name := range []string{"goja", "ecmascript", "js", "noop", core.DefaultInterpreter} {
		if _, err := is.Find(name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := is.Find("cobol"); err == nil {
		t.Fatal("found cobol")
	}
}

func TestNoop(t *testing.T) {
	i, _ := Standard().Find("noop")
	ctx := context.Background()
	compiled, err := i.Compile(ctx, "whatever")
	if err != nil {
		t.Fatal(err)
	}
	x, err := i.Exec(ctx, nil, "whatever", compiled)
	if err != nil || x != nil {
		t.Fatal(x, err)
	}
}
