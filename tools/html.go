package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/Mubelotix/minecraft-bot/core"

	md "github.com/russross/blackfriday/v2"
)

// RenderProgramHTML writes an HTML table of the program's states.
func RenderProgramHTML(p *core.Program, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	if p.Proc != nil && p.Proc.Doc != "" {
		f(`<div class="procDoc doc">%s</div>`, md.Run([]byte(p.Proc.Doc)))
	}

	if p.Proc != nil && 0 < len(p.Proc.Params) {
		f(`<div class="params"><table>`)
		for _, x := range p.Proc.Params {
			scope := "init"
			if x.Tick {
				scope = "tick"
			}
			f(`<tr><td><code>%s</code></td><td><code>%s</code></td><td>%s</td></tr>`,
				html.EscapeString(x.Name), html.EscapeString(x.Type), scope)
		}
		f(`</table></div>`)
	}

	byFrom := make(map[int][]Edge)
	for _, e := range Edges(p) {
		byFrom[e.From] = append(byFrom[e.From], e)
	}

	f(`<div class="states"><table>`)
	for _, s := range p.States {
		f(`<tr class="state"><td><span id="%s" class="stateName">%s</span></td><td>`, s.Name, s.Name)
		if 0 < len(s.Loops) {
			f(`<div class="loops">%s</div>`, html.EscapeString(fmt.Sprint(s.Loops)))
		}
		if 0 < len(s.Fields) {
			f(`<div class="fields">`)
			for _, x := range s.Fields {
				f(`<code>%s</code>`, html.EscapeString(x.String()))
			}
			f(`</div>`)
		}
		f(`<div class="code"><pre>%s</pre></div>`, html.EscapeString(core.FormatBody(s.Body, "")))
		if es := byFrom[s.Index]; 0 < len(es) {
			f(`<div class="edges"><table>`)
			for _, e := range es {
				target := "end"
				if !e.Terminal() {
					target = fmt.Sprintf(`<a href="#State%d"><code>State%d</code></a>`, e.To, e.To)
				}
				f(`<tr><td>%s</td><td>%s</td><td>%s</td></tr>`, e.Kind, html.EscapeString(e.Label), target)
			}
			f(`</table></div>`)
		}
		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

func RenderProgramPage(p *core.Program, out io.Writer, cssFiles []string, includeGraph bool) error {

	if cssFiles == nil {
		cssFiles = []string{"/static/program-html.css"}
	}

	js, err := json.Marshal(p)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, p.Name)

	if includeGraph {
		fmt.Fprintf(out, `
  <script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
  <script>
  var thisProgram = %s;
  mermaid.initialize({startOnLoad: true});
  </script>
`, js)
	}

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, p.Name)

	if includeGraph {
		var g bytes.Buffer
		if err := Mermaid(p, &g, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "<div class=\"mermaid\">\n%s</div>\n", g.String())
	}

	if err = RenderProgramHTML(p, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderProgramPage compiles the procedures in a file and
// renders the named one.  Opaque expressions are not compiled.
func ReadAndRenderProgramPage(filename, proc string, cssFiles []string, out io.Writer, includeGraph bool) error {
	src, err := ReadFileWithInlines(filename)
	if err != nil {
		return err
	}
	procs, err := core.LoadProcedures(src, filename)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	u, err := core.Compile(ctx, procs, &core.CompileOptions{SkipOpaque: true})
	if err != nil {
		return err
	}
	if proc == "" && 0 < len(u.Order) {
		proc = u.Order[0]
	}
	p, err := u.Program(proc)
	if err != nil {
		return err
	}

	return RenderProgramPage(p, out, cssFiles, includeGraph)
}
