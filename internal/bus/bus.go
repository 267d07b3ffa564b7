// Package bus wraps the MQTT broker connection: subscribing to the
// jobs topic and publishing lifecycle events on the three status
// topics, at QoS 1, non-retained.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ripqueue/internal/config"
	"ripqueue/internal/logger"
	"ripqueue/internal/protocol"
	"ripqueue/internal/xerrors"
)

const qosAtLeastOnce = 1

// Client wraps a connected paho client and the configured topic names.
type Client struct {
	mq     mqtt.Client
	topics config.Config
}

// JobHandler is invoked on every message received on the jobs topic.
// The raw payload is handed up unvalidated; protocol.Validate runs in
// the caller so the bus layer stays protocol-agnostic.
type JobHandler func(payload []byte)

// Connect dials the broker and returns a Client with handler wired to
// the configured jobs topic. Connection failures are wrapped as
// xerrors.ErrTransient so callers can apply the bounded startup retry
// the reconciler and worker both need.
func Connect(cfg *config.Config, clientID string, handler JobHandler) (*Client, error) {
	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.MQTTTLS {
		scheme = "tls"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.MQTTHost, cfg.MQTTPort))
	opts.SetClientID(clientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if handler == nil {
			return
		}
		token := c.Subscribe(cfg.TopicJobs, qosAtLeastOnce, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("failed to subscribe to jobs topic", "topic", cfg.TopicJobs, "error", err)
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: connect to broker %s:%d: %v", xerrors.ErrTransient, cfg.MQTTHost, cfg.MQTTPort, err)
	}
	return &Client{mq: client, topics: *cfg}, nil
}

// ConnectWithRetry retries Connect up to attempts times with a fixed
// delay between tries, matching the reconciler's "bounded startup
// retry" failure semantics.
func ConnectWithRetry(cfg *config.Config, clientID string, handler JobHandler, attempts int, delay time.Duration) (*Client, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		client, err := Connect(cfg, clientID, handler)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warn("broker connect failed, retrying", "attempt", i+1, "error", err)
		time.Sleep(delay)
	}
	return nil, lastErr
}

// PublishJob publishes a job envelope to the jobs topic.
func (c *Client) PublishJob(env protocol.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", xerrors.ErrProtocol, err)
	}
	return c.publish(c.topics.TopicJobs, payload)
}

// PublishStatus publishes a lifecycle event to the topic matching its
// kind.
func (c *Client) PublishStatus(ev protocol.StatusEvent) error {
	topic := map[protocol.StatusKind]string{
		protocol.StatusStart: c.topics.TopicStart,
		protocol.StatusDone:  c.topics.TopicDone,
		protocol.StatusError: c.topics.TopicError,
	}[ev.Kind]
	if topic == "" {
		return fmt.Errorf("%w: unknown status kind %q", xerrors.ErrProtocol, ev.Kind)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal status event: %v", xerrors.ErrProtocol, err)
	}
	return c.publish(topic, payload)
}

func (c *Client) publish(topic string, payload []byte) error {
	token := c.mq.Publish(topic, qosAtLeastOnce, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", xerrors.ErrTransient, topic, err)
	}
	return nil
}

func (c *Client) Close() {
	c.mq.Disconnect(250)
}
