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

package sio

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Mubelotix/minecraft-bot/machine"

	"github.com/gorilla/websocket"
)

// WebSocketCouplings is a client that reads world updates from a
// WebSocket server and writes each Batch back as a JSON message.
type WebSocketCouplings struct {
	URL    string
	Header http.Header

	Verbose bool

	sync.Mutex
	in   chan machine.Tick
	conn *websocket.Conn
}

var ErrNotConnected = errors.New("websocket not connected")

func NewWebSocketCouplings(u string) *WebSocketCouplings {
	return &WebSocketCouplings{
		URL: u,
	}
}

// Start creates the WebSocket session and starts processing it.
func (c *WebSocketCouplings) Start(ctx context.Context) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), c.Header)
	if err != nil {
		return err
	}

	c.Lock()
	c.conn = conn
	c.in = make(chan machine.Tick)
	c.Unlock()

	go c.readLoop(ctx, conn, c.in)

	return nil
}

func (c *WebSocketCouplings) readLoop(ctx context.Context, conn *websocket.Conn, in chan machine.Tick) {
	defer close(in)
	for {
		_, bs, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("websocket read error %s", err)
			}
			return
		}
		if len(bs) == 0 {
			continue
		}
		if c.Verbose {
			log.Println("heard", string(bs))
		}

		w, err := ParseTick(bs)
		if err != nil {
			log.Printf("ignoring websocket message: %s", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case in <- w:
		}
	}
}

// World returns the channel that Start() initialized.
func (c *WebSocketCouplings) World(ctx context.Context) (<-chan machine.Tick, error) {
	c.Lock()
	defer c.Unlock()
	if c.in == nil {
		return nil, ErrNotConnected
	}
	return c.in, nil
}

func (c *WebSocketCouplings) Send(ctx context.Context, b *Batch) error {
	js, err := json.Marshal(b)
	if err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, js)
}

// Stop terminates the WebSocket connection.
func (c *WebSocketCouplings) Stop(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		log.Printf("websocket close error %s", err)
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
