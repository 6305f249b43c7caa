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
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Mubelotix/minecraft-bot/machine"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions follow mosquitto_sub command line args where they can.
type MQTTOptions struct {
	Broker    string        `json:"broker" yaml:"broker"`
	ClientId  string        `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	Username  string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string        `json:"-" yaml:"-"`
	KeepAlive time.Duration `json:"keepAlive,omitempty" yaml:"keepAlive,omitempty"`
	Reconnect bool          `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
	Clean     bool          `json:"clean,omitempty" yaml:"clean,omitempty"`

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint `json:"quiesce,omitempty" yaml:"quiesce,omitempty"`

	// SubTopics are comma-separated TOPIC[:QOS] subscriptions
	// that carry world updates.
	SubTopics string `json:"subTopics,omitempty" yaml:"subTopics,omitempty"`

	// OutTopic is the default TOPIC[:QOS] for emitted messages.
	// A message that's a map with a "topic" (and optional "qos")
	// property goes there instead.
	OutTopic string `json:"outTopic,omitempty" yaml:"outTopic,omitempty"`

	// InjectTopic puts the topic in each world update.
	InjectTopic bool `json:"injectTopic,omitempty" yaml:"injectTopic,omitempty"`

	// InTimeout bounds how long an incoming message waits to be
	// queued.
	InTimeout time.Duration `json:"inTimeout,omitempty" yaml:"inTimeout,omitempty"`

	CertFile string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile   string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	Insecure bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
}

// DefaultMQTTOptions returns options for a local broker.
func DefaultMQTTOptions() *MQTTOptions {
	return &MQTTOptions{
		Broker:      "tcp://localhost:1883",
		KeepAlive:   10 * time.Second,
		Clean:       true,
		Quiesce:     100,
		OutTopic:    "bot/out",
		InjectTopic: false,
		InTimeout:   time.Second,
	}
}

// MQTTCouplings is a Couplings for an MQTT client.
type MQTTCouplings struct {
	Client mqtt.Client

	opts     *MQTTOptions
	ctx      context.Context
	cancel   context.CancelFunc
	incoming chan machine.Tick
}

func NewMQTTCouplings(o *MQTTOptions) (*MQTTCouplings, error) {
	if o == nil {
		o = DefaultMQTTOptions()
	}

	mqtt.ERROR = log.New(os.Stderr, "mqtt.error ", 0)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientId)
	if 0 < o.KeepAlive {
		opts.SetKeepAlive(o.KeepAlive)
	}
	opts.Username = o.Username
	opts.Password = o.Password
	opts.AutoReconnect = o.Reconnect
	opts.CleanSession = o.Clean

	tlsConf, err := tlsConfig(o)
	if err != nil {
		return nil, err
	}
	if tlsConf != nil {
		opts.SetTLSConfig(tlsConf)
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &MQTTCouplings{
		opts:     o,
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan machine.Tick, 16),
	}

	opts.DefaultPublishHandler = func(client mqtt.Client, msg mqtt.Message) {
		c.inHandler(msg)
	}

	c.Client = mqtt.NewClient(opts)

	return c, nil
}

func tlsConfig(o *MQTTOptions) (*tls.Config, error) {
	if o.CertFile == "" && o.CAFile == "" && !o.Insecure {
		return nil, nil
	}

	conf := &tls.Config{
		InsecureSkipVerify: o.Insecure,
	}

	if o.CAFile != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, err
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			log.Println("No certs appended, using system certs only")
		}
		conf.RootCAs = rootCAs
	}

	if o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	return conf, nil
}

// inHandler is a Paho publish handler, which is used to handle
// messages send to us from the MQTT broker due to our subscriptions.
func (c *MQTTCouplings) inHandler(msg mqtt.Message) {
	payload := msg.Payload()
	w, err := ParseTick(payload)
	if err != nil {
		log.Printf("ignoring MQTT message %s on %s: %s", JShort(string(payload)), msg.Topic(), err)
		return
	}
	if c.opts.InjectTopic {
		w["topic"] = msg.Topic()
	}

	timeout := c.opts.InTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	to := time.NewTimer(timeout)
	defer to.Stop()

	select {
	case <-c.ctx.Done():
	case c.incoming <- w:
	case <-to.C:
		log.Printf("dropping MQTT message on %s due to stall", msg.Topic())
	}
}

// Start creates the MQTT session.
func (c *MQTTCouplings) Start(ctx context.Context) error {
	if t := c.Client.Connect(); t.Wait() && t.Error() != nil {
		return t.Error()
	}

	for _, topic := range strings.Split(c.opts.SubTopics, ",") {
		topic, qos := parseTopic(strings.TrimSpace(topic))
		if topic == "" {
			continue
		}
		if t := c.Client.Subscribe(topic, qos, nil); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	return nil
}

func (c *MQTTCouplings) World(ctx context.Context) (<-chan machine.Tick, error) {
	if c.opts.SubTopics == "" {
		return nil, nil
	}
	return c.incoming, nil
}

// route finds the topic and QoS for a message.
func (c *MQTTCouplings) route(x interface{}) (string, byte) {
	topic, qos := parseTopic(c.opts.OutTopic)
	if m, is := x.(map[string]interface{}); is {
		if s, is := m["topic"].(string); is {
			topic = s
		}
		switch n := m["qos"].(type) {
		case nil:
		case float64:
			qos = byte(n)
		case int:
			qos = byte(n)
		default:
			log.Printf("warning: ignoring qos %#v %T", n, n)
		}
	}
	return topic, qos
}

// Send publishes each message as JSON.
func (c *MQTTCouplings) Send(ctx context.Context, b *Batch) error {
	for _, x := range b.Messages {
		topic, qos := c.route(x)
		js, err := json.Marshal(x)
		if err != nil {
			log.Printf("failed to marshal %#v", x)
			continue
		}
		t := c.Client.Publish(topic, qos, false, js)
		t.Wait()
		if err := t.Error(); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates the MQTT session.
func (c *MQTTCouplings) Stop(ctx context.Context) error {
	c.cancel()
	if c.Client.IsConnected() {
		c.Client.Disconnect(c.opts.Quiesce)
	}
	return nil
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	var qos byte
	if _, err := fmt.Sscanf(s[i+1:], "%d", &qos); err != nil || 2 < qos {
		return s, 0
	}
	return s[:i], qos
}
