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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/Mubelotix/minecraft-bot/util/testutil"
)

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

func TestHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	filename := filepath.Join(dir, "count.yaml")
	if err := os.WriteFile(filename, []byte(Dedent(countYAML)), 0644); err != nil {
		t.Fatal(err)
	}
	saved := filepath.Join(dir, "missions.json")

	h := NewHost()
	var out bytes.Buffer
	exec := func(line string, want ...string) {
		out.Reset()
		if err := h.Exec(ctx, line, &out); err != nil {
			t.Fatal(err)
		}
		for _, w := range want {
			if !strings.Contains(out.String(), w) {
				t.Fatalf("%s: no %q in %s", line, w, out.String())
			}
		}
	}

	exec("step a", "error: mission 'a' not found")
	exec("load "+filename, "loaded 1 procedures")
	exec("procs", "count (3 states)")
	exec(`new a count {"limit":3}`, "1 missions")
	exec(`new b count {"limit":1}`, "2 missions")
	exec("step a", "a InProgress State1", "emit 1")
	exec("print a", "state:  State1", `"i":1`)
	exec("save "+saved, "saved 2 missions")
	exec("step", "a InProgress State1", "emit 2", "b Done(1)")
	exec("print b", "finished")
	exec("restore "+saved, "2 missions")
	exec("step a", "emit 2")
	exec("rem b", "1 missions")
	exec("trace on", "tracing")
	exec("frobnicate", "unsupported command")
	exec("help", "restore FILENAME")
}

func TestRootFlags(t *testing.T) {
	opts := &Opts{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--history", "h.txt", "-e", "count.yaml"}); err != nil {
		t.Fatal(err)
	}
	if opts.history != "h.txt" || !opts.echo {
		t.Fatal(opts.history, opts.echo)
	}
	if args := cmd.Flags().Args(); len(args) != 1 || args[0] != "count.yaml" {
		t.Fatal(args)
	}
	if !strings.Contains(cmd.Long, "restore FILENAME") {
		t.Fatal(cmd.Long)
	}
}
