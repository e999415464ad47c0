// Package telemetry mirrors live readings to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/meter"
	"github.com/itohio/gocal/pkg/session"
)

const connectTimeout = 5 * time.Second

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON payload sent per reading.
type Message struct {
	Session     string    `json:"session"`
	Trial       string    `json:"trial"`
	Seq         uint64    `json:"seq"`
	Elapsed     float64   `json:"elapsed"`
	Value       float64   `json:"value"`
	Temperature float64   `json:"temperature"`
	Phase       string    `json:"phase"`
	Reset       bool      `json:"reset,omitempty"`
	Time        time.Time `json:"time"`
}

// Publisher sends fresh readings to {topic}/{trial}.
// Publishing never blocks the caller; delivery failures are logged and counted.
type Publisher struct {
	c        client
	topic    string
	qos      byte
	meta     session.Metadata
	now      func() time.Time
	failures atomic.Uint64
	sent     atomic.Uint64
}

// New connects to the configured broker.
func New(cfg config.MQTTConfig, meta session.Metadata) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %v", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	log.Printf("telemetry: connected to %s", cfg.Broker)
	return newPublisher(c, cfg, meta), nil
}

func newPublisher(c client, cfg config.MQTTConfig, meta session.Metadata) *Publisher {
	return &Publisher{
		c:     c,
		topic: fmt.Sprintf("%s/%s", cfg.Topic, meta.TrialID),
		qos:   cfg.QoS,
		meta:  meta,
		now:   time.Now,
	}
}

// Topic returns the topic readings are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// Publish sends r if it was freshly processed. Duplicate display readings are skipped.
func (p *Publisher) Publish(r meter.Reading) error {
	if !r.Fresh {
		return nil
	}

	payload, err := json.Marshal(Message{
		Session:     p.meta.ID.String(),
		Trial:       p.meta.TrialID,
		Seq:         r.Seq,
		Elapsed:     r.Elapsed,
		Value:       r.Value,
		Temperature: r.FilteredTemp,
		Phase:       r.Phase.String(),
		Reset:       r.Reset,
		Time:        p.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal reading %d: %w", r.Seq, err)
	}

	token := p.c.Publish(p.topic, p.qos, false, payload)
	go p.watch(token, r.Seq)
	return nil
}

func (p *Publisher) watch(token mqtt.Token, seq uint64) {
	<-token.Done()
	if err := token.Error(); err != nil {
		p.failures.Add(1)
		log.Printf("telemetry: publish %d: %v", seq, err)
		return
	}
	p.sent.Add(1)
}

// Attach publishes every meter update.
func (p *Publisher) Attach(m *meter.Meter) {
	m.OnUpdate(func(r meter.Reading, _ meter.Windows) {
		if err := p.Publish(r); err != nil {
			log.Printf("telemetry: %v", err)
		}
	})
}

// Sent returns the number of acknowledged publishes.
func (p *Publisher) Sent() uint64 {
	return p.sent.Load()
}

// Failures returns the number of failed publishes.
func (p *Publisher) Failures() uint64 {
	return p.failures.Load()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.c.Disconnect(250)
}
