package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Mubelotix/minecraft-bot/core"
)

// DotOpts controls Dot output.
type DotOpts struct {
	// ShowCode includes each state's body in its node.
	ShowCode bool `json:"showCode,omitempty" yaml:"showCode,omitempty"`

	// ShowFields lists each state's fields.
	ShowFields bool `json:"showFields,omitempty" yaml:"showFields,omitempty"`

	// Current, if not negative, is highlighted.
	Current int `json:"current" yaml:"current"`
}

var DefaultDotOpts = &DotOpts{
	ShowCode: true,
	Current:  -1,
}

// Dot makes a Graphviz dot file for the given program.
//
// Fall-through edges are solid, and edges that end a step are dashed.
// Both final results go to a single "end" node.
func Dot(p *core.Program, w io.Writer, opts *DotOpts) error {
	if opts == nil {
		opts = DefaultDotOpts
	}

	fmt.Fprintf(w, "digraph %q {\n", p.Name)
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	edges := Edges(p)
	reachable := Reachable(p, edges)

	for _, s := range p.States {
		label := s.Name
		if 0 < len(s.Loops) {
			label += `<BR/><FONT POINT-SIZE="8">` + htmlEscape(strings.Join(s.Loops, " / ")) + `</FONT>`
		}
		if opts.ShowFields && 0 < len(s.Fields) {
			fs := make([]string, len(s.Fields))
			for i, f := range s.Fields {
				fs[i] = f.String()
			}
			label += `<BR/><FONT POINT-SIZE="8">` + htmlEscape(strings.Join(fs, ", ")) + `</FONT>`
		}
		shape := "record"
		if opts.ShowCode {
			shape = "note"
			label += `<FONT POINT-SIZE="6">` +
				`<BR/>` + lines(htmlEscape(core.FormatBody(s.Body, ""))) + `<BR/>` +
				`</FONT>`
		}
		fillcolor := "#99ddc8"
		if 0 < len(s.Loops) {
			fillcolor = "#2d93ad"
		}
		color := "black"
		style := "filled"
		if s.Index == opts.Current {
			color = "red"
			fillcolor = "#f98b8b"
		}
		if s.Index == 0 {
			style += ",bold"
		}
		if !reachable[s.Index] {
			style += ",dashed"
		}
		fmt.Fprintf(w, "  s%d [shape=\"%s\", style=\"%s\", color=\"%s\", fillcolor=\"%s\", label=<%s> ]\n",
			s.Index, shape, style, color, fillcolor, label)
	}

	terminal := false
	for _, e := range edges {
		to := fmt.Sprintf("s%d", e.To)
		if e.Terminal() {
			to = "end"
			terminal = true
		}
		style := "solid"
		if e.Kind != Next && e.Kind != Done && e.Kind != Failed {
			style = "dashed"
		}
		color := "black"
		switch e.Kind {
		case Break, Continue:
			color = "#2d93ad"
		case Await:
			color = "#52aa5e"
		case Failed:
			color = "red"
		}
		label := string(e.Kind)
		if e.Label != "" {
			label += " " + e.Label
		}
		if e.Decl != "" {
			label += " (" + e.Decl + ")"
		}
		fmt.Fprintf(w, "  s%d -> %s [ style=\"%s\" color=\"%s\" label = <%s> ]\n",
			e.From, to, style, color, htmlEscape(label))
	}
	if terminal {
		fmt.Fprintf(w, "  end [shape=\"doublecircle\", style=\"filled\", fillcolor=\"#52aa5e\", label=\"end\"]\n")
	}

	_, err := fmt.Fprintf(w, "}\n")
	return err
}

// PNG generates a PNG image based on output from Dot.
//
// This function with write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(p *core.Program, basename string, opts *DotOpts) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(p, dotfile, opts); err != nil {
		dotfile.Close()
		return pngname, err
	}
	if err := dotfile.Close(); err != nil {
		return pngname, err
	}
	if err := exec.Command("dot", "-Tpng", "-Gstart=1", "-o", pngname, dotname).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func htmlEscape(s string) string {
	s = strings.Replace(s, "&", "&amp;", -1)
	s = strings.Replace(s, "<", "&lt;", -1)
	s = strings.Replace(s, ">", "&gt;", -1)
	return s
}

func lines(s string) string {
	return strings.Replace(s, "\n", `<BR ALIGN="LEFT"/>`, -1)
}

func escape(s string) string {
	return strings.Replace(s, `"`, `#quot;`, -1)
}
