package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Mubelotix/minecraft-bot/crew"
	"github.com/Mubelotix/minecraft-bot/interpreters"
	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/sio"
	"github.com/Mubelotix/minecraft-bot/storage/bolt"
	"github.com/Mubelotix/minecraft-bot/tools"

	"github.com/spf13/cobra"
)

func newExpectCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "expect SESSION FILE...",
		Short: "Run a session against procedures",
		Long:  `The session file (YAML) names a procedure, its arguments, and the ticks to give it along with the outputs, status, and value each tick should produce.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := loadUnit(ctx, args[1:], false)
			if err != nil {
				return err
			}
			bs, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := tools.ParseSession(bs)
			if err != nil {
				return err
			}
			s.Verbose = s.Verbose || verbose
			opts := &machine.Options{
				Interpreters: interpreters.Standard(),
			}
			if err := s.Run(ctx, u, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%d steps)\n", args[0], len(s.Steps))
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "trace", false, "log each step")
	return cmd
}

type runOpts struct {
	crewId      string
	starts      []string
	period      time.Duration
	db          string
	idleExit    bool
	trace       bool
	shellExpand bool
	timestamps  bool
	tags        bool

	mqtt      bool
	broker    string
	clientId  string
	subTopics string
	outTopic  string

	ws string
}

// parseStart reads "PROC" or "PROC {ARGS}".
func parseStart(s string) (string, map[string]interface{}, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, nil, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(s[i+1:]), &args); err != nil {
		return "", nil, fmt.Errorf("bad arguments for %s: %w", s[:i], err)
	}
	return s[:i], args, nil
}

func newRunCmd() *cobra.Command {
	opts := &runOpts{}

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Run missions as a crew",
		Long: `Runs a crew of missions, one step per tick.  World updates are JSON
objects from stdin (or MQTT or a WebSocket), and emitted messages go
back the same way.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			return opts.run(ctx, cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.crewId, "crew", "", "crew id (default random)")
	f.StringArrayVarP(&opts.starts, "start", "s", nil, `mission to start, as "PROC" or "PROC {ARGS}"`)
	f.DurationVar(&opts.period, "tick", envDuration("MBOT_TICK", time.Second), "tick period")
	f.StringVar(&opts.db, "db", envString("MBOT_DB", ""), "BoltDB file for missions")
	f.BoolVar(&opts.idleExit, "idle-exit", false, "stop when no missions are left")
	f.BoolVar(&opts.trace, "trace", false, "log every transition")
	f.BoolVar(&opts.shellExpand, "sh", false, "expand <<shell commands>> in stdin")
	f.BoolVar(&opts.timestamps, "timestamps", false, "timestamp stdout lines")
	f.BoolVar(&opts.tags, "tags", true, "tag stdout lines with emit or result")

	f.BoolVar(&opts.mqtt, "mqtt", false, "couple to MQTT instead of stdio")
	f.StringVar(&opts.broker, "broker", envString("MBOT_MQTT_BROKER", "tcp://localhost:1883"), "MQTT broker")
	f.StringVar(&opts.clientId, "client-id", "", "MQTT client id")
	f.StringVar(&opts.subTopics, "sub", "", "MQTT world update TOPIC[:QOS],...")
	f.StringVar(&opts.outTopic, "out", "bot/out", "MQTT default TOPIC[:QOS] for messages")

	f.StringVar(&opts.ws, "ws", "", "couple to this WebSocket URL instead of stdio")

	return cmd
}

func (o *runOpts) couplings(cmd *cobra.Command) (sio.Couplings, error) {
	switch {
	case o.ws != "":
		return sio.NewWebSocketCouplings(o.ws), nil
	case o.mqtt:
		mo := sio.DefaultMQTTOptions()
		mo.Broker = o.broker
		mo.ClientId = o.clientId
		mo.SubTopics = o.subTopics
		mo.OutTopic = o.outTopic
		return sio.NewMQTTCouplings(mo)
	default:
		s := sio.NewStdio(o.shellExpand)
		s.In = cmd.InOrStdin()
		s.Out = cmd.OutOrStdout()
		s.Timestamps = o.timestamps
		s.Tags = o.tags
		return s, nil
	}
}

func (o *runOpts) run(ctx context.Context, cmd *cobra.Command, files []string) error {
	u, err := loadUnit(ctx, files, false)
	if err != nil {
		return err
	}

	c := crew.NewCrew(o.crewId, u, &machine.Options{
		Interpreters: interpreters.Standard(),
		Context:      ctx,
		Trace:        o.trace,
	})
	c.Verbose, _ = cmd.Flags().GetBool("verbose")

	if o.db != "" {
		s, err := bolt.NewStorage(o.db)
		if err != nil {
			return err
		}
		if err := s.Open(ctx); err != nil {
			return err
		}
		defer s.Close(context.Background())
		c.Storage = s
		if _, err := c.Load(ctx); err != nil {
			return err
		}
	}

	for _, start := range o.starts {
		proc, args, err := parseStart(start)
		if err != nil {
			return err
		}
		if _, err := c.Start(ctx, "", proc, args); err != nil {
			return err
		}
	}

	cs, err := o.couplings(cmd)
	if err != nil {
		return err
	}
	if err := cs.Start(ctx); err != nil {
		return err
	}
	defer cs.Stop(context.Background())

	return c.Run(ctx, o.period, cs, o.idleExit)
}
