package machine

import (
	"encoding/json"
	"fmt"

	"github.com/Mubelotix/minecraft-bot/core"
)

// Snapshot is the serializable state of a Machine between steps.
//
// A finished Machine has State -1.  Sub-missions that are still
// running are in Subs, keyed by their handle fields.
type Snapshot struct {
	Proc   string                 `json:"proc"`
	State  int                    `json:"state"`
	Fields map[string]interface{} `json:"fields,omitempty"`
	Subs   map[string]*Snapshot   `json:"subs,omitempty"`
}

// Snapshot captures the Machine's current state.  Fields holding
// closures can't be captured.
func (m *Machine) Snapshot() (*Snapshot, error) {
	s := &Snapshot{
		Proc:  m.prog.Name,
		State: -1,
	}
	if m.cur == nil {
		return s, nil
	}
	s.State = m.cur.State
	s.Fields = make(map[string]interface{}, len(m.cur.Fields))
	for name, x := range m.cur.Fields {
		switch vv := x.(type) {
		case *Machine:
			sub, err := vv.Snapshot()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if s.Subs == nil {
				s.Subs = make(map[string]*Snapshot)
			}
			s.Subs[name] = sub
		case *closure:
			return nil, fmt.Errorf("field %s holds a closure", name)
		default:
			s.Fields[name] = x
		}
	}
	return s, nil
}

// MarshalJSON is a convenience for Snapshot().
func (m *Machine) MarshalJSON() ([]byte, error) {
	s, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Restore rebuilds a Machine from a Snapshot.  Field values are
// converted to their declared types, so a Snapshot that went through
// JSON restores faithfully.
func Restore(u *core.Unit, s *Snapshot, opts *Options) (*Machine, error) {
	m, err := newMachine(u, s.Proc, opts)
	if err != nil {
		return nil, err
	}
	if s.State < 0 {
		return m, nil
	}
	if len(m.prog.States) <= s.State {
		return nil, &core.UnknownState{Proc: s.Proc, State: fmt.Sprint(s.State)}
	}

	f := &frame{
		State:  s.State,
		Fields: make(map[string]interface{}, len(s.Fields)),
	}
	for _, x := range m.prog.States[s.State].Fields {
		if x.Mission != "" {
			sub, have := s.Subs[x.Name]
			if !have || sub == nil {
				f.Fields[x.Name] = nil
				continue
			}
			child, err := Restore(u, sub, opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", x.Name, err)
			}
			f.Fields[x.Name] = child
			continue
		}
		v, err := coerce(s.Fields[x.Name], m.fieldTypes[x.Name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", x.Name, err)
		}
		f.Fields[x.Name] = v
	}
	m.cur = f
	return m, nil
}

// ParseSnapshot decodes JSON from Snapshot or MarshalJSON.
func ParseSnapshot(bs []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(bs, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
