// Package interpreters collects the interpreters for opaque
// expressions.
package interpreters

import (
	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/interpreters/goja"
	"github.com/Mubelotix/minecraft-bot/interpreters/noop"
)

// Standard returns a fresh map of the standard interpreters.
func Standard() core.InterpretersMap {
	is := core.NewInterpretersMap()

	js := goja.NewInterpreter()
	is["goja"] = js
	is["ecmascript"] = js
	is["js"] = js

	is["noop"] = noop.NewInterpreter()

	return is
}
