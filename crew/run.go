package crew

import (
	"context"
	"errors"
	"time"

	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/sio"

	"golang.org/x/sync/errgroup"
)

var errIdle = errors.New("crew is idle")

// Run ticks the crew every period.
//
// World updates from the Couplings are merged into the world the
// next tick sees, so a property keeps its value until an update
// changes it, and every Batch is sent to the Couplings.  Run
// returns when ctx is done, when the Couplings fail, or (with
// stopWhenIdle) when the crew has no missions left.
func (c *Crew) Run(ctx context.Context, period time.Duration, cs sio.Couplings, stopWhenIdle bool) error {
	g, ctx := errgroup.WithContext(ctx)

	in, err := cs.World(ctx)
	if err != nil {
		return err
	}

	var (
		updates = make(chan machine.Tick)
		batches = make(chan []*sio.Batch, 16)
	)

	g.Go(func() error {
		if in == nil {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case w, ok := <-in:
				if !ok {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case updates <- w:
				}
			}
		}
	})

	g.Go(func() error {
		defer close(batches)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		world := make(machine.Tick)
		for {
			select {
			case <-ctx.Done():
				return nil
			case w := <-updates:
				for k, v := range w {
					world[k] = v
				}
			case <-ticker.C:
				if stopWhenIdle && len(c.Missions()) == 0 {
					return errIdle
				}
				current := make(machine.Tick, len(world))
				for k, v := range world {
					current[k] = v
				}
				bs, err := c.Tick(ctx, current)
				if err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					return nil
				case batches <- bs:
				}
			}
		}
	})

	g.Go(func() error {
		for bs := range batches {
			for _, b := range bs {
				if err := cs.Send(ctx, b); err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != errIdle {
		return err
	}
	return nil
}
