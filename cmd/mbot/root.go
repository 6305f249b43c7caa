package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/interpreters"
	"github.com/Mubelotix/minecraft-bot/tools"

	"github.com/spf13/cobra"
)

type rootOpts struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:           "mbot",
		Short:         "Compile and run tick-stepped missions",
		Long:          `mbot compiles procedures into state machines, renders them, generates Go code for them, and runs them as a crew.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			core.Verbose = opts.verbose
			tools.Verbose = opts.verbose
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(
		newCompileCmd(),
		newGenCmd(),
		newGraphCmd(),
		newAnalyzeCmd(),
		newHTMLCmd(),
		newExpectCmd(),
		newRunCmd(),
	)

	return cmd
}

// loadUnit reads and compiles all the procedures in the files.
func loadUnit(ctx context.Context, filenames []string, skipOpaque bool) (*core.Unit, error) {
	var procs []*core.Procedure
	for _, filename := range filenames {
		src, err := tools.ReadFileWithInlines(filename)
		if err != nil {
			return nil, err
		}
		ps, err := core.LoadProcedures(src, filename)
		if err != nil {
			return nil, err
		}
		procs = append(procs, ps...)
	}
	if len(procs) == 0 {
		return nil, fmt.Errorf("no procedures in %v", filenames)
	}
	return core.Compile(ctx, procs, &core.CompileOptions{
		Interpreters: interpreters.Standard(),
		SkipOpaque:   skipOpaque,
	})
}

// programs returns the named programs, or all of them when no name
// is given.
func programs(u *core.Unit, name string) ([]*core.Program, error) {
	if name != "" {
		p, err := u.Program(name)
		if err != nil {
			return nil, err
		}
		return []*core.Program{p}, nil
	}
	acc := make([]*core.Program, 0, len(u.Order))
	for _, n := range u.Order {
		acc = append(acc, u.Programs[n])
	}
	return acc, nil
}

func envString(name, def string) string {
	if s := os.Getenv(name); s != "" {
		return s
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("ignoring %s=%q: %s", name, s, err)
		return def
	}
	return d
}
