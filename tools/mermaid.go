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
	"fmt"
	"io"
	"strings"

	"github.com/Mubelotix/minecraft-bot/core"
)

type MermaidOpts struct {
	// ShowKinds labels each edge with its kind (and loop label).
	ShowKinds bool `json:"showKinds"`

	// LoopFill is the fill color for states inside suspending
	// loops.  Does not apply if LoopClass is set.
	LoopFill string `json:"loopFill,omitempty"`

	// LoopClass will be the CSS class for states inside
	// suspending loops.
	LoopClass string `json:"loopClass,omitempty"`

	// Direction is the graph direction: TB, LR, etc.
	Direction string `json:"direction,omitempty"`
}

var DefaultMermaidOpts = &MermaidOpts{
	ShowKinds: true,
	LoopFill:  "#bcf2db",
	Direction: "TB",
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given program.
func Mermaid(p *core.Program, w io.Writer, opts *MermaidOpts) error {
	if opts == nil {
		opts = DefaultMermaidOpts
	}
	dir := opts.Direction
	if dir == "" {
		dir = "TB"
	}

	fmt.Fprintf(w, "graph %s\n", dir)

	for _, s := range p.States {
		nid := fmt.Sprintf("s%d", s.Index)
		if len(s.Loops) == 0 {
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, escape(s.Name))
			continue
		}
		fmt.Fprintf(w, "  %s[\"%s<br/>%s\"]\n", nid, escape(s.Name), escape(strings.Join(s.Loops, " / ")))
		switch {
		case opts.LoopClass != "":
			fmt.Fprintf(w, "  class %s %s\n", nid, opts.LoopClass)
		case opts.LoopFill != "":
			fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.LoopFill)
		}
	}

	end := false
	for _, e := range Edges(p) {
		to := fmt.Sprintf("s%d", e.To)
		if e.Terminal() {
			to = "fin"
			end = true
		}
		arrow := "-->"
		if e.Kind != Next && !e.Terminal() {
			arrow = "-.->"
		}
		label := ""
		if opts.ShowKinds {
			l := string(e.Kind)
			if e.Label != "" {
				l += " " + e.Label
			}
			label = fmt.Sprintf("|%s|", escape(l))
		}
		fmt.Fprintf(w, "  s%d %s%s %s\n", e.From, arrow, label, to)
	}
	if end {
		fmt.Fprintf(w, "  fin((\"end\"))\n")
	}

	_, err := fmt.Fprintf(w, "\n")
	return err
}
