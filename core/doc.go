/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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


// Package core compiles procedures into state machines that advance
// one tick at a time.
//
// A Procedure is a body of statements plus parameters.  Some
// parameters are tick parameters, which are supplied fresh on every
// step; the rest are given once when a mission starts.  A body can
// contain suspending loops, which are loops whose iterations each take
// a tick.  Everything else in a body runs to completion within a
// single tick.
//
// Compile partitions each body into States.  A State is a maximal run
// of statements that doesn't cross a suspending loop.  Declarations
// become Fields that persist across ticks.  Within a state, control
// transfers that leave the state are rewritten into explicit
// transitions: a Goto either falls through to the next state in the
// same tick or yields until the next one, and a Finish ends the
// mission.
//
// A sub-mission call becomes a handle Field and a suspending loop that
// awaits the child, so a parent steps its child once per tick.
//
// Compilation problems are collected as Diagnostics.  Compile either
// returns a complete Unit or a *Diagnostics that lists everything it
// found.
//
// The compiled Program is executed by package machine or turned into
// Go source by package gen.
package core
