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

package sio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/machine"
)

// Stdio is a fairly simple Couplings that reads world updates (one
// JSON object per line) from In and writes emitted messages to Out.
type Stdio struct {
	// In is coupled to crew input.
	In io.Reader

	// Out is coupled to crew output.
	Out io.Writer

	// ShellExpand enables input to include inline shell commands
	// delimited by '<<' and '>>'.  Use at your own risk, of
	// course!
	ShellExpand bool

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// EchoInput writes input lines (prepended with "input") to
	// the output.
	EchoInput bool

	// Tags prefixes tags indicating type of output ("input",
	// "emit", "result").
	Tags bool

	// PadTags adds some padding to tags.
	PadTags bool

	// PrintResults writes a line when a mission finishes.
	PrintResults bool

	// InputEOF will be closed on EOF from In.
	InputEOF chan bool

	sync.Mutex
}

// NewStdio creates a new Stdio.
//
// In and Out are initialized with os.Stdin and os.Stdout
// respectively.
func NewStdio(shellExpand bool) *Stdio {
	return &Stdio{
		In:           os.Stdin,
		Out:          os.Stdout,
		ShellExpand:  shellExpand,
		PrintResults: true,
		InputEOF:     make(chan bool),
	}
}

// Start does nothing.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

// Stop does nothing.
func (s *Stdio) Stop(ctx context.Context) error {
	return nil
}

func (s *Stdio) printf(tag, format string, args ...interface{}) {
	s.Lock()
	defer s.Unlock()
	if s.PadTags {
		tag = fmt.Sprintf("% 10s", tag)
	}
	if s.Tags {
		format = tag + " " + format
	}
	if s.Timestamps {
		ts := fmt.Sprintf("%-31s", core.Timestamp())
		format = ts + " " + format
	}
	fmt.Fprintf(s.Out, format, args...)
}

// World starts reading In.  A line "quit" ends the input like EOF
// does.  Blank lines and lines starting with '#' are ignored.
func (s *Stdio) World(ctx context.Context) (<-chan machine.Tick, error) {
	in := make(chan machine.Tick)

	go func() {
		defer close(in)
		if s.InputEOF != nil {
			defer close(s.InputEOF)
		}
		stdin := bufio.NewReader(s.In)
		for {
			line, err := stdin.ReadString('\n')
			if err != nil && err != io.EOF {
				log.Printf("stdin error %s", err)
				return
			}
			eof := err == io.EOF
			if strings.TrimSpace(line) == "quit" {
				return
			}
			if s.EchoInput && line != "" {
				s.printf("input", "%s", line)
			}
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				if s.ShellExpand {
					if line, err = ShellExpand(line); err != nil {
						log.Printf("stdin error %s", err)
						return
					}
				}
				w, err := ParseTick([]byte(line))
				if err != nil {
					fmt.Fprintf(os.Stderr, "bad input: %s\n", err)
				} else {
					select {
					case <-ctx.Done():
						return
					case in <- w:
					}
				}
			}
			if eof {
				return
			}
		}
	}()

	return in, nil
}

// Send writes each message as JSON on its own line.
func (s *Stdio) Send(ctx context.Context, b *Batch) error {
	for _, msg := range b.Messages {
		s.printf("emit", "%s\n", JS(msg))
	}
	if s.PrintResults && b.Status.Terminal() {
		r := *b
		r.Messages = nil
		s.printf("result", "%s\n", JS(&r))
	}
	return nil
}
