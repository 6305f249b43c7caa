package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/gen"
	"github.com/Mubelotix/minecraft-bot/tools"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// stateView is a State with its code.
type stateView struct {
	Name   string   `json:"name" yaml:"name"`
	Next   int      `json:"next" yaml:"next"`
	Yield  bool     `json:"yield,omitempty" yaml:"yield,omitempty"`
	Loops  []string `json:"loops,omitempty" yaml:"loops,omitempty"`
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Code   string   `json:"code" yaml:"code"`
}

type programView struct {
	Name   string       `json:"name" yaml:"name"`
	Subs   []string     `json:"subs,omitempty" yaml:"subs,omitempty"`
	States []*stateView `json:"states" yaml:"states"`
}

func viewProgram(p *core.Program) *programView {
	v := &programView{
		Name:   p.Name,
		Subs:   p.Subs,
		States: make([]*stateView, 0, len(p.States)),
	}
	for _, s := range p.States {
		sv := &stateView{
			Name:  s.Name,
			Next:  s.Next,
			Yield: s.Yield,
			Loops: s.Loops,
			Code:  core.FormatBody(s.Body, ""),
		}
		for _, f := range s.Fields {
			sv.Fields = append(sv.Fields, f.String())
		}
		v.States = append(v.States, sv)
	}
	return v
}

// write renders x as JSON or YAML.
func write(w io.Writer, format string, x interface{}) error {
	switch format {
	case "json", "":
		js, err := json.MarshalIndent(x, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", js)
		return err
	case "yaml":
		bs, err := yaml.Marshal(x)
		if err != nil {
			return err
		}
		_, err = w.Write(bs)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func newCompileCmd() *cobra.Command {
	var proc, format string

	cmd := &cobra.Command{
		Use:   "compile FILE...",
		Short: "Compile procedures and print their states",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loadUnit(cmd.Context(), args, false)
			if err != nil {
				return err
			}
			ps, err := programs(u, proc)
			if err != nil {
				return err
			}
			vs := make([]*programView, 0, len(ps))
			for _, p := range ps {
				vs = append(vs, viewProgram(p))
			}
			return write(cmd.OutOrStdout(), format, vs)
		},
	}
	cmd.Flags().StringVarP(&proc, "proc", "p", "", "only this procedure")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or yaml")
	return cmd
}

func newGenCmd() *cobra.Command {
	var (
		pkg     string
		imports []string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "gen FILE...",
		Short: "Generate Go source for procedures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loadUnit(cmd.Context(), args, true)
			if err != nil {
				return err
			}
			src, err := gen.Generate(u, &gen.Options{
				Package:   pkg,
				Imports:   imports,
				Generator: "mbot gen",
			})
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(src)
				return err
			}
			return os.WriteFile(output, src, 0644)
		},
	}
	cmd.Flags().StringVar(&pkg, "package", gen.DefaultOptions.Package, "package name")
	cmd.Flags().StringSliceVar(&imports, "import", nil, "extra import paths")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newGraphCmd() *cobra.Command {
	var proc, format, png string
	var code bool

	cmd := &cobra.Command{
		Use:   "graph FILE...",
		Short: "Draw a program's state graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loadUnit(cmd.Context(), args, true)
			if err != nil {
				return err
			}
			if proc == "" {
				proc = u.Order[0]
			}
			p, err := u.Program(proc)
			if err != nil {
				return err
			}

			dotOpts := *tools.DefaultDotOpts
			dotOpts.ShowCode = code

			if png != "" {
				filename, err := tools.PNG(p, png, &dotOpts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), filename)
				return nil
			}

			switch format {
			case "dot":
				return tools.Dot(p, cmd.OutOrStdout(), &dotOpts)
			case "mermaid":
				return tools.Mermaid(p, cmd.OutOrStdout(), tools.DefaultMermaidOpts)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&proc, "proc", "p", "", "procedure (default first)")
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "dot or mermaid")
	cmd.Flags().StringVar(&png, "png", "", "render with Graphviz to BASENAME.png")
	cmd.Flags().BoolVar(&code, "code", true, "show each state's code")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var proc, format string

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Report on compiled programs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loadUnit(cmd.Context(), args, true)
			if err != nil {
				return err
			}
			ps, err := programs(u, proc)
			if err != nil {
				return err
			}
			as := make([]*tools.ProgramAnalysis, 0, len(ps))
			for _, p := range ps {
				a, err := tools.Analyze(p)
				if err != nil {
					return err
				}
				as = append(as, a)
			}
			return write(cmd.OutOrStdout(), format, as)
		},
	}
	cmd.Flags().StringVarP(&proc, "proc", "p", "", "only this procedure")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or yaml")
	return cmd
}

func newHTMLCmd() *cobra.Command {
	var (
		proc  string
		css   []string
		graph bool
	)

	cmd := &cobra.Command{
		Use:   "html FILE",
		Short: "Render a program as an HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tools.ReadAndRenderProgramPage(args[0], proc, css, cmd.OutOrStdout(), graph)
		},
	}
	cmd.Flags().StringVarP(&proc, "proc", "p", "", "procedure (default first)")
	cmd.Flags().StringSliceVar(&css, "css", nil, "stylesheet URLs")
	cmd.Flags().BoolVar(&graph, "graph", true, "include a Mermaid state graph")
	return cmd
}
