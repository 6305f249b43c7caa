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

package tools

import (
	"sort"

	"github.com/Mubelotix/minecraft-bot/core"
)

// ProgramAnalysis summarizes the shape of a compiled program.
type ProgramAnalysis struct {
	Name       string `json:"name"`
	StateCount int    `json:"stateCount"`
	Edges      int    `json:"edges"`

	// Yields counts transitions that end a step.
	Yields int `json:"yields"`

	// Loops are the suspending loop labels.
	Loops []string `json:"loops,omitempty"`

	// Fields is the number of fields in the widest state.
	Fields    int `json:"fields"`
	AllFields int `json:"allFields"`

	// Unreachable states can't run starting from the first state.
	Unreachable []string `json:"unreachable,omitempty"`

	// Finals are the states that can end the mission.
	Finals []string `json:"finals,omitempty"`

	Subs         []string `json:"subs,omitempty"`
	Opaques      int      `json:"opaques"`
	Interpreters []string `json:"interpreters,omitempty"`

	// Errors are problems a correct compilation never produces.
	Errors []string `json:"errors,omitempty"`
}

// Analyze reports on a compiled program.
func Analyze(p *core.Program) (*ProgramAnalysis, error) {
	edges := Edges(p)
	a := &ProgramAnalysis{
		Name:       p.Name,
		StateCount: len(p.States),
		Edges:      len(edges),
		Loops:      p.LoopLabels(),
		AllFields:  len(p.Fields),
		Subs:       p.Subs,
		Errors:     make([]string, 0, 2),
	}

	finals := make(map[int]bool)
	for _, e := range edges {
		switch {
		case e.Terminal():
			finals[e.From] = true
		case e.Kind != Next:
			a.Yields++
		}
		if !e.Terminal() && (e.To < 0 || len(p.States) <= e.To) {
			a.Errors = append(a.Errors, "bad target in "+e.String())
		}
	}

	reachable := Reachable(p, edges)
	interpreters := make(map[string]bool)
	for _, s := range p.States {
		if a.Fields < len(s.Fields) {
			a.Fields = len(s.Fields)
		}
		if !reachable[s.Index] {
			a.Unreachable = append(a.Unreachable, s.Name)
		}
		if finals[s.Index] {
			a.Finals = append(a.Finals, s.Name)
		}
		core.WalkStmts(s.Body, func(c *core.Cursor) {
			if x, is := c.Node().(*core.Opaque); is {
				a.Opaques++
				interpreters[core.InterpreterFor(p.Proc, x)] = true
			}
		})
	}
	if len(a.Finals) == 0 && 0 < len(p.States) {
		a.Errors = append(a.Errors, "no state finishes")
	}
	a.Interpreters = keys(interpreters)

	return a, nil
}

func keys(m map[string]bool) []string {
	var acc []string
	for k := range m {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}
