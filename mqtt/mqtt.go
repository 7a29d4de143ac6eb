// Package mqtt publishes fogger cycle outcomes to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"furitingoasis/fogger/control"
)

// MQTTConfig holds the configuration for the MQTT client.
type MQTTConfig struct {
	BrokerURL     string
	ClientID      string
	Username      string
	Password      string
	TopicPrefix   string
	QoS           byte
	Retained      bool
	AutoReconnect bool
	MaxRetries    int
	RetryInterval time.Duration
}

// Publisher sends cycle summaries to {prefix}/status and warnings to
// {prefix}/alerts.
type Publisher struct {
	client mqtt.Client
	config MQTTConfig
	logger *slog.Logger
}

// Connect dials the broker, retrying up to MaxRetries times.
func Connect(config MQTTConfig, logger *slog.Logger) (*Publisher, error) {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 2 * time.Second
	}
	opts := mqtt.NewClientOptions().AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(config.AutoReconnect)

	var lastErr error
	for retries := 0; retries < config.MaxRetries; retries++ {
		client := mqtt.NewClient(opts)
		token := client.Connect()
		if token.WaitTimeout(config.RetryInterval) && token.Error() == nil {
			logger.Info("connected to MQTT broker", "broker", config.BrokerURL)
			return NewPublisher(client, config, logger), nil
		}
		lastErr = token.Error()
		if lastErr == nil {
			lastErr = fmt.Errorf("timed out after %s", config.RetryInterval)
		}
		logger.Warn("failed to connect to MQTT broker", "attempt", retries+1, "max", config.MaxRetries, "error", lastErr)
		if retries+1 < config.MaxRetries {
			time.Sleep(config.RetryInterval)
		}
	}
	return nil, fmt.Errorf("connecting to MQTT broker %s after %d attempts: %w", config.BrokerURL, config.MaxRetries, lastErr)
}

// NewPublisher wraps an already connected client.
func NewPublisher(client mqtt.Client, config MQTTConfig, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, config: config, logger: logger}
}

// Message is one payload bound for one topic.
type Message struct {
	Topic   string
	Payload []byte
}

// JoinTopic puts name under prefix; an empty prefix leaves name alone.
func JoinTopic(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// CycleMessages is what one cycle puts on the bus: the JSON summary on
// {prefix}/status followed by each warning on {prefix}/alerts. Every
// binary that publishes cycles goes through here.
func CycleMessages(prefix string, s control.Summary) ([]Message, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling cycle summary %s: %w", s.ID, err)
	}
	msgs := []Message{{Topic: JoinTopic(prefix, "status"), Payload: payload}}
	for _, w := range s.Warnings() {
		msgs = append(msgs, AlertMessage(prefix, w))
	}
	return msgs, nil
}

// AlertMessage is a plain-text alert on {prefix}/alerts.
func AlertMessage(prefix, text string) Message {
	return Message{Topic: JoinTopic(prefix, "alerts"), Payload: []byte(text)}
}

// Topic joins the configured prefix and name.
func (p *Publisher) Topic(name string) string {
	return JoinTopic(p.config.TopicPrefix, name)
}

// Publish publishes a message to a specific MQTT topic.
func (p *Publisher) Publish(topic string, payload []byte) {
	if p.client == nil || !p.client.IsConnected() {
		p.logger.Warn("MQTT client not connected, dropping message", "topic", topic)
		return
	}
	token := p.client.Publish(topic, p.config.QoS, p.config.Retained, payload)
	go func() { // Non-blocking wait for publish to complete
		if token.Wait() && token.Error() != nil {
			p.logger.Error("error publishing", "topic", topic, "error", token.Error())
		}
	}()
	p.logger.Debug("published", "topic", topic, "bytes", len(payload))
}

// RecordCycle implements control.Recorder.
func (p *Publisher) RecordCycle(s control.Summary) {
	msgs, err := CycleMessages(p.config.TopicPrefix, s)
	if err != nil {
		p.logger.Error(err.Error())
		return
	}
	for _, m := range msgs {
		p.Publish(m.Topic, m.Payload)
	}
}

// Close disconnects the MQTT client.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.logger.Info("disconnecting from MQTT broker")
		p.client.Disconnect(250) // Wait up to 250 milliseconds for inflight messages to be delivered
	}
}
