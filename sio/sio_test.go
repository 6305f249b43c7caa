package sio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Mubelotix/minecraft-bot/machine"
	"github.com/Mubelotix/minecraft-bot/mission"

	"github.com/gorilla/websocket"
)

func TestStdio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out bytes.Buffer
	s := NewStdio(false)
	s.In = strings.NewReader("# comment\n{\"health\":20}\n\nnope\n{\"health\":19}\nquit\n{\"health\":1}\n")
	s.Out = &out
	s.Tags = true

	in, err := s.World(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []machine.Tick
	for w := range in {
		got = append(got, w)
	}
	if len(got) != 2 || got[0]["health"] != float64(20) || got[1]["health"] != float64(19) {
		t.Fatal(got)
	}
	select {
	case <-s.InputEOF:
	default:
		t.Fatal("InputEOF still open")
	}

	b := NewBatch("m1", 3, mission.Complete[interface{}](7), []interface{}{"hi", map[string]interface{}{"x": 1}})
	if err := s.Send(ctx, b); err != nil {
		t.Fatal(err)
	}
	want := "emit \"hi\"\nemit {\"x\":1}\nresult {\"mission\":\"m1\",\"tick\":3,\"status\":\"Done\",\"value\":7}\n"
	if out.String() != want {
		t.Fatalf("%q", out.String())
	}
}

func TestNewBatch(t *testing.T) {
	b := NewBatch("m", 1, mission.Fail[interface{}](errors.New("lava")), nil)
	if b.Status != mission.Failed || b.Error != "lava" || b.Value != nil {
		t.Fatal(JS(b))
	}
	b = NewBatch("m", 1, mission.Pending[interface{}](), []interface{}{1})
	if b.Status != mission.InProgress || len(b.Messages) != 1 {
		t.Fatal(JS(b))
	}
}

func TestParseTopic(t *testing.T) {
	for _, tc := range []struct {
		in    string
		topic string
		qos   byte
	}{
		{"bot/out", "bot/out", 0},
		{"bot/out:1", "bot/out", 1},
		{"bot/out:2", "bot/out", 2},
		{"bot/out:7", "bot/out:7", 0},
		{"bot/out:x", "bot/out:x", 0},
	} {
		topic, qos := parseTopic(tc.in)
		if topic != tc.topic || qos != tc.qos {
			t.Fatal(tc.in, topic, qos)
		}
	}
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 0 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

func TestMQTTRouting(t *testing.T) {
	o := DefaultMQTTOptions()
	o.OutTopic = "bot/chat:1"
	o.SubTopics = "world/+"
	o.InjectTopic = true
	c, err := NewMQTTCouplings(o)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Stop(context.Background())

	if topic, qos := c.route("hi"); topic != "bot/chat" || qos != 1 {
		t.Fatal(topic, qos)
	}
	if topic, qos := c.route(map[string]interface{}{"topic": "bot/move", "qos": float64(2)}); topic != "bot/move" || qos != 2 {
		t.Fatal(topic, qos)
	}

	in, err := c.World(context.Background())
	if err != nil || in == nil {
		t.Fatal(err)
	}
	c.inHandler(&message{topic: "world/me", payload: []byte(`{"health":20}`)})
	c.inHandler(&message{topic: "world/me", payload: []byte(`not json`)})
	select {
	case w := <-in:
		if w["health"] != float64(20) || w["topic"] != "world/me" {
			t.Fatal(w)
		}
	default:
		t.Fatal("nothing queued")
	}
	select {
	case w := <-in:
		t.Fatal(w)
	default:
	}
}

func TestWebSocket(t *testing.T) {
	heard := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"health":20}`)); err != nil {
			return
		}
		_, bs, err := conn.ReadMessage()
		if err != nil {
			return
		}
		heard <- bs
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewWebSocketCouplings("ws" + strings.TrimPrefix(srv.URL, "http"))
	if _, err := c.World(ctx); err != ErrNotConnected {
		t.Fatal(err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	in, err := c.World(ctx)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case w := <-in:
		if w["health"] != float64(20) {
			t.Fatal(w)
		}
	case <-ctx.Done():
		t.Fatal(ctx.Err())
	}

	if err := c.Send(ctx, NewBatch("m", 1, mission.Pending[interface{}](), []interface{}{"hi"})); err != nil {
		t.Fatal(err)
	}
	select {
	case bs := <-heard:
		var b Batch
		if err := json.Unmarshal(bs, &b); err != nil {
			t.Fatal(err)
		}
		if b.Mission != "m" || b.Status != mission.InProgress || len(b.Messages) != 1 {
			t.Fatal(string(bs))
		}
	case <-ctx.Done():
		t.Fatal(ctx.Err())
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Send(ctx, &Batch{}); err != ErrNotConnected {
		t.Fatal(err)
	}
}
