package machine

import (
	"testing"

	"github.com/Mubelotix/minecraft-bot/mission"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCountProperty(t *testing.T) {
	u := compile(t, countYAML)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("count(n) yields n times then finishes", prop.ForAll(
		func(n int) bool {
			m, err := New(u, "count", map[string]interface{}{"limit": n}, nil)
			if err != nil {
				return false
			}
			out := mission.NewOutbox()
			for i := 0; i < n; i++ {
				if r := m.Step(nil, out); r.Status != mission.InProgress {
					return false
				}
			}
			if r := m.Step(nil, out); r.Status != mission.Done || r.Value != n {
				return false
			}
			if out.Len() != n {
				return false
			}
			if r := m.Step(nil, out); r.Status != mission.Outdated {
				return false
			}
			return out.Len() == n
		},
		gen.IntRange(1, 60),
	))

	properties.Property("snapshots resume where they left off", prop.ForAll(
		func(n, at int) bool {
			if n < at {
				at = n
			}
			m, err := New(u, "count", map[string]interface{}{"limit": n}, nil)
			if err != nil {
				return false
			}
			for i := 0; i < at; i++ {
				m.Step(nil, nil)
			}
			s, err := m.Snapshot()
			if err != nil {
				return false
			}
			m, err = Restore(u, s, nil)
			if err != nil {
				return false
			}
			steps := at
			for {
				steps++
				r := m.Step(nil, nil)
				if r.Status == mission.InProgress {
					continue
				}
				return r.Status == mission.Done && r.Value == n && steps == n+1
			}
		},
		gen.IntRange(1, 30),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
