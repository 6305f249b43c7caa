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

// Package mission defines the execution contract shared by compiled
// and hand-written missions.
//
// A mission is a steppable state machine.  The owner calls Step once
// per tick, passing the tick-scoped world snapshot and an Outbox for
// anything the mission wants to send.  Step never blocks.
package mission

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the outcome of one Step.
type Status int

const (
	InProgress Status = iota // Call again next tick.
	Done                     // Finished with a value.
	Failed                   // Finished with an error.
	Outdated                 // Already finished; nothing was executed.
)

var statusNames = []string{"InProgress", "Done", "Failed", "Outdated"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether the status ends a mission.
func (s Status) Terminal() bool {
	return s == Done || s == Failed || s == Outdated
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(bs []byte) error {
	var name string
	if err := json.Unmarshal(bs, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mission status %q", name)
}

// ErrOutdated is the failure reported by a parent mission when a
// sub-mission it polls says it has already finished.
var ErrOutdated = errors.New("sub-mission is outdated")

// Result is the sole return channel of Step.
//
// Value is meaningful only when Status is Done, and Err only when
// Status is Failed.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Pending reports that the mission wants to be stepped again.
func Pending[T any]() Result[T] {
	return Result[T]{Status: InProgress}
}

// Complete reports a successful end with the given value.
func Complete[T any](v T) Result[T] {
	return Result[T]{Status: Done, Value: v}
}

// Fail reports an unsuccessful end.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("mission failed")
	}
	return Result[T]{Status: Failed, Err: err}
}

// Stale is what every Step after a terminal result returns.
func Stale[T any]() Result[T] {
	return Result[T]{Status: Outdated}
}

func (r Result[T]) String() string {
	switch r.Status {
	case Done:
		return fmt.Sprintf("Done(%v)", r.Value)
	case Failed:
		return fmt.Sprintf("Failed(%v)", r.Err)
	default:
		return r.Status.String()
	}
}

// Erase converts a typed Result to one carrying interface{}.
func Erase[T any](r Result[T]) Result[interface{}] {
	acc := Result[interface{}]{Status: r.Status, Err: r.Err}
	if r.Status == Done {
		acc.Value = r.Value
	}
	return acc
}

// Mission is implemented by every generated mission type and by the
// interpreter in package machine.
type Mission[W any, T any] interface {
	Step(w W, out *Outbox) Result[T]
}

// Func adapts an ordinary function to the Mission interface.
type Func[W any, T any] func(w W, out *Outbox) Result[T]

func (f Func[W, T]) Step(w W, out *Outbox) Result[T] {
	return f(w, out)
}
