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

// Package main is a command-line mission debugger in the spirit of gdb.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/interpreters"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"
	"github.com/Mubelotix/minecraft-bot/tools"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

type Opts struct {
	history string
	echo    bool
}

func main() {
	if err := newRootCmd(&Opts{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *Opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mdb [FILENAME...]",
		Short:        "Step missions interactively",
		Long:         "Step missions interactively.  Commands:\n" + doc(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(args)
		},
	}
	cmd.Flags().StringVarP(&opts.history, "history", "H", "", "history file")
	cmd.Flags().BoolVarP(&opts.echo, "echo", "e", false, "echo input")
	return cmd
}

func (opts *Opts) run(files []string) error {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mdb> ",
		HistoryFile:     opts.history,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	h := NewHost()
	w := rl.Stdout()

	if 0 < len(files) {
		if err := h.Exec(ctx, "load "+strings.Join(files, " "), w); err != nil {
			return err
		}
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if line == "" {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if opts.echo {
			fmt.Fprintln(w, line)
		}
		if strings.TrimSpace(line) == "quit" {
			return nil
		}
		if err := h.Exec(ctx, line, w); err != nil {
			return err
		}
	}
}

// Host holds the debugger's compiled unit and its missions.
type Host struct {
	unit     *core.Unit
	files    []string
	machines map[string]*machine.Machine
	trace    bool
}

func NewHost() *Host {
	return &Host{
		machines: make(map[string]*machine.Machine, 8),
	}
}

func (h *Host) options(ctx context.Context) *machine.Options {
	return &machine.Options{
		Interpreters: interpreters.Standard(),
		Context:      ctx,
		Trace:        h.trace,
	}
}

// Load compiles the procedures in the files.  Existing missions
// keep running the programs they started with.
func (h *Host) Load(ctx context.Context, files []string) error {
	var procs []*core.Procedure
	for _, filename := range files {
		src, err := tools.ReadFileWithInlines(filename)
		if err != nil {
			return err
		}
		ps, err := core.LoadProcedures(src, filename)
		if err != nil {
			return err
		}
		procs = append(procs, ps...)
	}
	u, err := core.Compile(ctx, procs, &core.CompileOptions{
		Interpreters: interpreters.Standard(),
	})
	if err != nil {
		return err
	}
	h.unit = u
	h.files = files
	return nil
}

func (h *Host) ids() []string {
	acc := make([]string, 0, len(h.machines))
	for id := range h.machines {
		acc = append(acc, id)
	}
	sort.Strings(acc)
	return acc
}

var (
	loadCmd    = regexp.MustCompile("^load +(.*)")
	reloadCmd  = regexp.MustCompile("^reload$")
	procsCmd   = regexp.MustCompile("^procs$")
	newCmd     = regexp.MustCompile("^new +([-a-zA-Z0-9_]+) +([-a-zA-Z0-9_]+)( +(.*))?$")
	stepCmd    = regexp.MustCompile("^step( +([-a-zA-Z0-9_]+))?( +(\\{.*))?$")
	remCmd     = regexp.MustCompile("^(rem|del|remove|delete) +([-a-zA-Z0-9_]+)")
	printCmd   = regexp.MustCompile("^print( +([-a-zA-Z0-9_]+))?$")
	saveCmd    = regexp.MustCompile("^save +(.*)")
	restoreCmd = regexp.MustCompile("^restore +(.*)")
	traceCmd   = regexp.MustCompile("^trace (on|off)$")
	helpCmd    = regexp.MustCompile("^(help|h|\\?)$")
)

// Exec runs one command line.  Problems with the command are
// reported to w.  The returned error is for problems writing.
func (h *Host) Exec(ctx context.Context, line string, w io.Writer) error {

	var (
		outputPrefix = "# "

		say = func(format string, args ...interface{}) {
			fmt.Fprintf(w, outputPrefix+format+"\n", args...)
		}

		protest = func(format string, args ...interface{}) {
			say("error: "+format, args...)
		}
	)

	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	var ss []string

	if ss = helpCmd.FindStringSubmatch(line); 0 < len(ss) {
		for _, s := range strings.Split(doc(), "\n") {
			say("%s", s)
		}
		return nil
	}

	if reloadCmd.MatchString(line) {
		if len(h.files) == 0 {
			protest("nothing loaded")
			return nil
		}
		line = "load " + strings.Join(h.files, " ")
		// Fall through!
	}

	if ss = loadCmd.FindStringSubmatch(line); 0 < len(ss) {
		if err := h.Load(ctx, strings.Fields(ss[1])); err != nil {
			protest("couldn't load %s: %s", ss[1], err)
			return nil
		}
		say("loaded %d procedures", len(h.unit.Order))
		return nil
	}

	if procsCmd.MatchString(line) {
		if h.unit == nil {
			protest("nothing loaded")
			return nil
		}
		for _, name := range h.unit.Order {
			p := h.unit.Programs[name]
			say("%s (%d states)", name, len(p.States))
		}
		return nil
	}

	if ss = newCmd.FindStringSubmatch(line); 0 < len(ss) {
		id, proc, js := ss[1], ss[2], ss[4]
		if h.unit == nil {
			protest("nothing loaded")
			return nil
		}
		var args map[string]interface{}
		if js != "" {
			if err := json.Unmarshal([]byte(js), &args); err != nil {
				protest("couldn't parse arguments %s", js)
				return nil
			}
		}
		m, err := machine.New(h.unit, proc, args, h.options(ctx))
		if err != nil {
			protest("%s", err)
			return nil
		}
		h.machines[id] = m
		say("%d missions", len(h.machines))
		return nil
	}

	if ss = stepCmd.FindStringSubmatch(line); 0 < len(ss) {
		id, js := ss[2], ss[4]
		var tick machine.Tick
		if js != "" {
			if err := json.Unmarshal([]byte(js), &tick); err != nil {
				protest("couldn't parse tick %s", js)
				return nil
			}
		}
		ids := []string{id}
		if id == "" {
			ids = h.ids()
		}
		for _, id := range ids {
			m, have := h.machines[id]
			if !have {
				protest("mission '%s' not found", id)
				continue
			}
			out := mission.NewOutbox()
			r := m.Step(tick, out)
			say("%s %s %s", id, r, m.State())
			for _, x := range out.Drain() {
				say("  emit %s", JS(x))
			}
		}
		return nil
	}

	if ss = remCmd.FindStringSubmatch(line); 0 < len(ss) {
		id := ss[2]
		if _, have := h.machines[id]; !have {
			protest("mission '%s' not found", id)
			return nil
		}
		delete(h.machines, id)
		say("%d missions", len(h.machines))
		return nil
	}

	if ss = printCmd.FindStringSubmatch(line); 0 < len(ss) {
		printer := func(id string) error {
			m, have := h.machines[id]
			if !have {
				return fmt.Errorf("mission '%s' not found", id)
			}
			s, err := m.Snapshot()
			if err != nil {
				return err
			}
			say("mission %s:", id)
			say("  proc:   %s", s.Proc)
			if m.Finished() {
				say("  finished")
				return nil
			}
			say("  state:  %s", m.State())
			say("  fields: %s", JS(s.Fields))
			for name, sub := range s.Subs {
				say("  sub %s: %s", name, JS(sub))
			}
			return nil
		}
		ids := []string{ss[2]}
		if ss[2] == "" {
			ids = h.ids()
		}
		for _, id := range ids {
			if err := printer(id); err != nil {
				protest("%s", err)
			}
		}
		return nil
	}

	if ss = saveCmd.FindStringSubmatch(line); 0 < len(ss) {
		filename := ss[1]
		snapshots := make(map[string]*machine.Snapshot, len(h.machines))
		for id, m := range h.machines {
			s, err := m.Snapshot()
			if err != nil {
				protest("can't save %s: %s", id, err)
				return nil
			}
			snapshots[id] = s
		}
		js, err := json.MarshalIndent(snapshots, "", "  ")
		if err != nil {
			return err // Internal error
		}
		if err = os.WriteFile(filename, js, 0644); err != nil {
			protest("writing file: %s", err)
			return nil
		}
		say("saved %d missions", len(snapshots))
		return nil
	}

	if ss = restoreCmd.FindStringSubmatch(line); 0 < len(ss) {
		filename := ss[1]
		if h.unit == nil {
			protest("nothing loaded")
			return nil
		}
		js, err := os.ReadFile(filename)
		if err != nil {
			protest("reading file '%s': %s", filename, err)
			return nil
		}
		var snapshots map[string]*machine.Snapshot
		if err = json.Unmarshal(js, &snapshots); err != nil {
			protest("loading %s: %s", filename, err)
			return nil
		}
		ms := make(map[string]*machine.Machine, len(snapshots))
		for id, s := range snapshots {
			m, err := machine.Restore(h.unit, s, h.options(ctx))
			if err != nil {
				protest("couldn't restore %s: %s", id, err)
				return nil
			}
			ms[id] = m
		}
		h.machines = ms
		say("%d missions", len(h.machines))
		return nil
	}

	if ss = traceCmd.FindStringSubmatch(line); 0 < len(ss) {
		h.trace = ss[1] == "on"
		if h.trace {
			say("tracing new missions")
		} else {
			say("not tracing new missions")
		}
		return nil
	}

	protest("unsupported command: %s", line)
	return nil
}

func doc() string {
	return `
  load FILENAME...           Compile the procedures in these files
  reload                     Compile the last files again
  procs                      List the procedures
  new ID PROC [ARGS]         Start a mission of PROC with ARGS (JSON)
  step [ID] [TICK]           Step the mission with ID (or all) with TICK (JSON)
  print [ID]                 Print the state of the mission with that ID (or all)
  rem ID                     Remove the mission with that ID
  save FILENAME              Save the missions to this file
  restore FILENAME           Replace the missions with those saved in this file
  trace on/off               Log the transitions of new missions
  help                       Show this documentation
  quit                       Quit
`
}
