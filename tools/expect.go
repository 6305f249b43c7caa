/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/match"
	"github.com/Mubelotix/minecraft-bot/mission"
	. "github.com/Mubelotix/minecraft-bot/util/testutil"

	"github.com/jsccast/yaml"
)

// Output is a specification for a message that's expected.
type Output struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Pattern must be matched by an emitted message.
	Pattern interface{} `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Guard is optional opaque source that runs with the match's
	// bindings.  A false or null result rejects the match.
	Guard interface{} `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Interpreter runs the Guard.  The default is
	// core.DefaultInterpreter.
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`

	// Bindings, which is the result of a match (and optional
	// guard) is written during processing.  Just for diagnostics.
	Bindings match.Bindings `json:"-" yaml:"-"`
}

// Expect is one tick of a Session and what it should produce.
type Expect struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Tick supplies the tick parameters.
	Tick map[string]interface{} `json:"tick,omitempty" yaml:"tick,omitempty"`

	// OutputSet is the set (not a list) of outputs to verify.
	OutputSet []Output `json:"outputSet,omitempty" yaml:"outputSet,omitempty"`

	// Exact requires every emitted message to match some output.
	Exact bool `json:"exact,omitempty" yaml:"exact,omitempty"`

	// Status is the required result status ("InProgress", "Done",
	// "Failed", "Outdated").  Empty means don't care.
	Status string `json:"status,omitempty" yaml:"status,omitempty"`

	// Value, if not nil, is a pattern the result value must match.
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Session is mostly a sequence of Expects for one mission.
type Session struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Proc is the procedure to run.
	Proc string `json:"proc" yaml:"proc"`

	// Args are the constructor arguments.
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`

	Steps []Expect `json:"steps" yaml:"steps"`

	// Interpreters are used (if necessary) to run guards.
	Interpreters core.InterpretersMap `json:"-" yaml:"-"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// ExpectationFailed reports the first step that didn't go as
// expected.
type ExpectationFailed struct {
	Step    int
	Doc     string
	Problem string
}

func (e *ExpectationFailed) Error() string {
	if e.Doc != "" {
		return fmt.Sprintf("step %d (%s): %s", e.Step, e.Doc, e.Problem)
	}
	return fmt.Sprintf("step %d: %s", e.Step, e.Problem)
}

// ParseSession reads a YAML (or JSON) session.
func ParseSession(bs []byte) (*Session, error) {
	var s Session
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return nil, err
	}
	s.Args = stringMap(s.Args)
	for i := range s.Steps {
		e := &s.Steps[i]
		e.Tick = stringMap(e.Tick)
		e.Value = core.StringMaps(e.Value)
		for j := range e.OutputSet {
			e.OutputSet[j].Pattern = core.StringMaps(e.OutputSet[j].Pattern)
			e.OutputSet[j].Guard = core.StringMaps(e.OutputSet[j].Guard)
		}
	}
	return &s, nil
}

func stringMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return core.StringMaps(m).(map[string]interface{})
}

// Run starts a mission for s.Proc and processes all the Expects in
// the Session.
func (s *Session) Run(ctx context.Context, u *core.Unit, opts *machine.Options) error {
	if opts == nil {
		opts = &machine.Options{}
	}
	o := *opts
	o.Context = ctx
	if o.Interpreters == nil {
		o.Interpreters = s.Interpreters
	}
	m, err := machine.New(u, s.Proc, s.Args, &o)
	if err != nil {
		return err
	}
	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := &s.Steps[i]
		out := mission.NewOutbox()
		r := m.Step(machine.Tick(e.Tick), out)
		if s.Verbose {
			log.Printf("step %d: %s %s", i, r, JS(out.Messages))
		}
		fail := func(format string, args ...interface{}) error {
			return &ExpectationFailed{Step: i, Doc: e.Doc, Problem: fmt.Sprintf(format, args...)}
		}
		if e.Status != "" && e.Status != r.Status.String() {
			return fail("wanted %s, got %s", e.Status, r)
		}
		if e.Value != nil {
			bs, err := matches(e.Value, r.Value)
			if err != nil {
				return err
			}
			if bs == nil {
				return fail("value %v doesn't match %s", r.Value, JS(e.Value))
			}
		}
		if err := s.outputs(ctx, e, out.Messages); err != nil {
			if _, is := err.(*ExpectationFailed); is {
				return err
			}
			return fail("%s", err)
		}
	}
	return nil
}

func (s *Session) outputs(ctx context.Context, e *Expect, messages []interface{}) error {
	matched := make([]bool, len(messages))
	for j := range e.OutputSet {
		o := &e.OutputSet[j]
		o.Bindings = nil
		for k, msg := range messages {
			bs, err := matches(o.Pattern, msg)
			if err != nil {
				return err
			}
			if bs != nil && o.Guard != nil {
				if bs, err = s.guard(ctx, o, bs); err != nil {
					return err
				}
			}
			if bs != nil {
				o.Bindings = bs
				matched[k] = true
				break
			}
		}
		if o.Bindings == nil {
			return fmt.Errorf("nothing matched %s in %s", JS(o.Pattern), JS(messages))
		}
	}
	if e.Exact {
		for k, ok := range matched {
			if !ok {
				return fmt.Errorf("unexpected %s", JS(messages[k]))
			}
		}
	}
	return nil
}

func (s *Session) guard(ctx context.Context, o *Output, bs match.Bindings) (match.Bindings, error) {
	name := o.Interpreter
	if name == "" {
		name = core.DefaultInterpreter
	}
	is := s.Interpreters
	if is == nil {
		is = core.DefaultInterpreters
	}
	i, err := is.Find(name)
	if err != nil {
		return nil, err
	}
	compiled, err := i.Compile(ctx, o.Guard)
	if err != nil {
		return nil, err
	}
	x, err := i.Exec(ctx, &core.ScriptEnv{Bindings: bs.Strip()}, o.Guard, compiled)
	if err != nil {
		return nil, err
	}
	if x == nil || x == false {
		return nil, nil
	}
	return bs, nil
}

func matches(pattern, x interface{}) (match.Bindings, error) {
	y, err := core.Canonicalize(x)
	if err != nil {
		return nil, err
	}
	bss, err := match.Match(pattern, y, match.NewBindings())
	if err != nil || len(bss) == 0 {
		return nil, err
	}
	return bss[0], nil
}
