package noop

import (
	"context"
	"log"

	"github.com/Mubelotix/minecraft-bot/core"
)

// Interpreter is a core.Interpreter whose expressions do nothing and
// have the value nil.
type Interpreter struct {
	// Silent suppresses warning log messages.
	Silent bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	if !i.Silent {
		log.Printf("warning: using the noop interpreter to compile")
	}
	return nil, nil
}

func (i *Interpreter) Exec(ctx context.Context, env *core.ScriptEnv, code interface{}, compiled interface{}) (interface{}, error) {
	if !i.Silent {
		log.Printf("warning: using the noop interpreter to execute")
	}
	return nil, nil
}
