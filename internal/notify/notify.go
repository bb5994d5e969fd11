// Package notify publishes job lifecycle events to an MQTT broker so other
// systems can react to completed or failed transcriptions without polling.
package notify

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Publisher is a publish-only MQTT client with auto-reconnect.
type Publisher struct {
	conn      mqtt.Client
	topic     string
	connected atomic.Bool
	log       zerolog.Logger
}

// Connect establishes the broker connection. The initial connect must
// succeed; later drops are retried in the background.
func Connect(opts Options) (*Publisher, error) {
	p := &Publisher{
		topic: opts.Topic,
		log:   opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return p, nil
}

// Publish sends one event as JSON on the configured topic. The event name is
// appended as a subtopic, e.g. scribe/jobs/job_completed. Publishing is
// best-effort; failures are logged, never propagated to the pipeline.
func (p *Publisher) Publish(event string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("could not marshal event payload")
		return
	}

	topic := p.topic + "/" + event
	token := p.conn.Publish(topic, 0, false, body)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
		}
	}()
}

func (p *Publisher) onConnect(_ mqtt.Client) {
	p.connected.Store(true)
	p.log.Info().Str("topic", p.topic).Msg("mqtt connected")
}

func (p *Publisher) onConnectionLost(_ mqtt.Client, err error) {
	p.connected.Store(false)
	p.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

func (p *Publisher) Close() {
	p.log.Info().Msg("disconnecting mqtt publisher")
	p.conn.Disconnect(1000)
}
