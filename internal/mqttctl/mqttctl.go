// Package mqttctl feeds control ops from an MQTT broker onto the control
// bus. The topic <prefix>/<op> carries the same JSON body as POST /<op>.
package mqttctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/control"
)

const connectTimeout = 5 * time.Second

type Options struct {
	Broker   string // tcp://host:1883
	Prefix   string
	ClientID string // "" generates ledmatrix-<uuid>
	QoS      byte
}

type Stats struct {
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
}

type Subscriber struct {
	opts   Options
	bus    *control.Bus
	client mqtt.Client

	received atomic.Uint64
	rejected atomic.Uint64
}

func New(bus *control.Bus, o Options) *Subscriber {
	o.Prefix = strings.TrimSuffix(o.Prefix, "/")
	if o.ClientID == "" {
		o.ClientID = "ledmatrix-" + uuid.NewString()
	}
	return &Subscriber{opts: o, bus: bus}
}

func (s *Subscriber) Topic() string { return s.opts.Prefix + "/+" }

func (s *Subscriber) ClientID() string { return s.opts.ClientID }

// Connect dials the broker and subscribes. The subscription is renewed on
// every reconnect.
func (s *Subscriber) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.opts.Broker)
	opts.SetClientID(s.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		tok := c.Subscribe(s.Topic(), s.opts.QoS, s.onMessage)
		if !tok.WaitTimeout(connectTimeout) {
			log.Warn().Str("topic", s.Topic()).Msg("mqtt subscribe timeout")
			return
		}
		if err := tok.Error(); err != nil {
			log.Error().Err(err).Str("topic", s.Topic()).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("broker", s.opts.Broker).Str("topic", s.Topic()).Msg("mqtt control subscribed")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", s.opts.Broker).Msg("mqtt connection lost, reconnecting")
	}

	s.client = mqtt.NewClient(opts)
	tok := s.client.Connect()
	select {
	case <-tok.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connect %s: timeout", s.opts.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.opts.Broker, err)
	}
	return nil
}

func (s *Subscriber) Close() {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.Topic()).WaitTimeout(time.Second)
	}
	s.client.Disconnect(250)
}

func (s *Subscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	if err := s.Handle(m.Topic(), m.Payload()); err != nil {
		log.Warn().Err(err).Str("topic", m.Topic()).Msg("mqtt op rejected")
	}
}

// Handle decodes one message and publishes it.
func (s *Subscriber) Handle(topic string, payload []byte) error {
	s.received.Add(1)
	op, ok := strings.CutPrefix(topic, s.opts.Prefix+"/")
	if !ok || op == "" || strings.Contains(op, "/") {
		s.rejected.Add(1)
		return fmt.Errorf("topic %q is not under %s", topic, s.Topic())
	}
	ev, err := control.Decode(op, payload)
	if err != nil {
		s.rejected.Add(1)
		return err
	}
	ev.Source = "mqtt"
	if err := s.bus.Publish(ev); err != nil {
		if !errors.Is(err, control.ErrBusClosed) {
			s.rejected.Add(1)
		}
		return err
	}
	return nil
}

func (s *Subscriber) Stats() Stats {
	return Stats{Received: s.received.Load(), Rejected: s.rejected.Load()}
}
