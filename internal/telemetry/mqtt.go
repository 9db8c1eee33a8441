// SPDX-License-Identifier: GPL-3.0-only

// Package telemetry publishes control cycle results to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectWait = 250 // ms
)

// Client is the part of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configures a broker connection.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// CycleMessage is the JSON payload published for every completed cycle.
type CycleMessage struct {
	Timestamp string  `json:"timestamp"`
	Ambient   float64 `json:"ambient"`
	Previous  int     `json:"previous"`
	Target    int     `json:"target"`
	Source    string  `json:"source"`
	DeviceOK  bool    `json:"device_ok"`
}

// Publisher implements controller.Observer and controller.CalibrationObserver.
type Publisher struct {
	client Client
	prefix string
	qos    byte
	retain bool
	close  func()
}

// NewPublisher publishes through an already connected client.
func NewPublisher(client Client, prefix string, qos byte, retain bool) *Publisher {
	return &Publisher{client: client, prefix: prefix, qos: qos, retain: retain}
}

// Connect dials the broker and returns a publisher owning the connection.
func Connect(opts Options) (*Publisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, err)
	}
	log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")

	p := NewPublisher(client, opts.TopicPrefix, opts.QoS, opts.Retain)
	p.close = func() { client.Disconnect(disconnectWait) }
	return p, nil
}

// CycleTopic returns the topic cycle results are published to.
func (p *Publisher) CycleTopic() string {
	return p.prefix + "/cycle"
}

// CalibrationTopic returns the topic new calibrations are published to.
func (p *Publisher) CalibrationTopic() string {
	return p.prefix + "/calibration"
}

// CycleCompleted publishes res to CycleTopic.
func (p *Publisher) CycleCompleted(res controller.Result) {
	p.publish(p.CycleTopic(), CycleMessage{
		Timestamp: res.Time.Format(time.RFC3339),
		Ambient:   res.Ambient,
		Previous:  res.Previous,
		Target:    res.Target,
		Source:    string(res.Source),
		DeviceOK:  res.DeviceOK,
	})
}

// CalibrationChanged publishes the new profile to CalibrationTopic.
func (p *Publisher) CalibrationChanged(pr profile.Profile) {
	p.publish(p.CalibrationTopic(), pr)
}

// Close disconnects from the broker if the publisher owns the connection.
func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}

func (p *Publisher) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to encode telemetry")
		return
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("Timed out publishing telemetry")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish telemetry")
		return
	}
	log.Debug().Str("topic", topic).Msg("Telemetry published")
}
