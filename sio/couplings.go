/* Copyright 2019 Comcast Cable Communications Management, LLC
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

// Package sio couples a crew to the outside world: world updates
// come in, and the messages missions emit go out.
package sio

import (
	"context"

	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"
)

// Batch is what one mission emitted during one tick.
type Batch struct {
	Mission  string        `json:"mission"`
	Tick     uint64        `json:"tick"`
	Messages []interface{} `json:"messages,omitempty"`

	// Status is the mission's result for the tick.  Value and
	// Error are set when the mission finished.
	Status mission.Status `json:"status"`
	Value  interface{}    `json:"value,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// NewBatch packages a step's outcome.
func NewBatch(id string, tick uint64, r mission.Result[interface{}], msgs []interface{}) *Batch {
	b := &Batch{
		Mission:  id,
		Tick:     tick,
		Messages: msgs,
		Status:   r.Status,
	}
	switch r.Status {
	case mission.Done:
		b.Value = r.Value
	case mission.Failed:
		if r.Err != nil {
			b.Error = r.Err.Error()
		}
	}
	return b
}

// Couplings provide channels for world input and a way to deliver
// emitted messages.
//
// For example, an implementation could couple a crew to an MQTT
// broker for both.
type Couplings interface {
	// Start initializes the Couplings.
	Start(context.Context) error

	// World returns world updates.  The channel is closed when
	// the input ends.  A Couplings without input returns nil.
	World(context.Context) (<-chan machine.Tick, error)

	// Send delivers a Batch.
	Send(context.Context, *Batch) error

	// Stop shuts down the Couplings.
	Stop(context.Context) error
}
