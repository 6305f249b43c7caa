package mission

// OutboxInitialCap is the initial capacity of a new Outbox.
var OutboxInitialCap = 16

// Outbox collects what missions want to send during a tick.
//
// The caller owns the Outbox and drains it after each tick.  Missions
// never perform I/O themselves.
type Outbox struct {
	Messages []interface{} `json:"messages,omitempty" yaml:",omitempty"`
}

func NewOutbox() *Outbox {
	return &Outbox{
		Messages: make([]interface{}, 0, OutboxInitialCap),
	}
}

// Emit appends messages.  A nil Outbox discards them.
func (o *Outbox) Emit(xs ...interface{}) {
	if o == nil {
		return
	}
	o.Messages = append(o.Messages, xs...)
}

func (o *Outbox) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Messages)
}

// Drain returns the accumulated messages and empties the Outbox.
func (o *Outbox) Drain() []interface{} {
	if o == nil {
		return nil
	}
	acc := o.Messages
	o.Messages = make([]interface{}, 0, OutboxInitialCap)
	return acc
}
