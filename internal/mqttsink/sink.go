// Package mqttsink mirrors received CAN frames to an MQTT broker as JSON.
package mqttsink

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

var (
	ErrConfig   = errors.New("mqttsink: config")
	ErrOverflow = errors.New("mqttsink: queue full")
)

const publishTimeout = 2 * time.Second

// Config configures a Sink. Broker is a URL such as tcp://host:1883; user
// info in the URL becomes the MQTT username and password.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QueueLen int
}

// Message is the JSON document published for each frame.
type Message struct {
	ID    string `json:"id"`
	Len   uint8  `json:"len"`
	Flags uint8  `json:"flags"`
	Data  string `json:"data"`
}

func NewMessage(fr can.Frame) Message {
	return Message{
		ID:    fmt.Sprintf("%X", fr.ID()),
		Len:   fr.Len,
		Flags: fr.Flags,
		Data:  hex.EncodeToString(fr.Payload()),
	}
}

// TopicFor returns "<base>/<id hex>".
func TopicFor(base string, fr can.Frame) string {
	return fmt.Sprintf("%s/%X", strings.TrimSuffix(base, "/"), fr.ID())
}

// publisher is the subset of mqtt.Client used by Sink.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Sink publishes frames at QoS 0 from a single goroutine. SendFrame never
// blocks; frames are dropped while the queue is full.
type Sink struct {
	client publisher
	topic  string
	tx     *transport.AsyncTx
}

var _ transport.FrameSink = (*Sink)(nil)

// New connects to the broker in the background (paho retries until it
// succeeds) and starts the publish worker.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: broker and topic are required", ErrConfig)
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOrderMatters(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.L().Warn("mqtt_connection_lost", logging.Err(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logging.L().Info("mqtt_connected", "broker", cfg.Broker)
	})
	client := mqtt.NewClient(opts)
	go func() {
		if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
			logging.L().Warn("mqtt_connect_failed", logging.Err(tok.Error()))
		}
	}()
	return newSink(ctx, client, cfg.Topic, cfg.QueueLen), nil
}

func newSink(ctx context.Context, client publisher, topic string, queue int) *Sink {
	if queue <= 0 {
		queue = 256
	}
	s := &Sink{client: client, topic: topic}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrMQTTPublish)
			logging.L().Debug("mqtt_publish_error", logging.Err(err))
		},
		OnAfter: metrics.IncMQTTPublished,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrMQTTPublish)
			return ErrOverflow
		},
	}
	s.tx = transport.NewAsyncTx(ctx, queue, s.publish, hooks)
	return s
}

func (s *Sink) publish(fr can.Frame) error {
	payload, err := json.Marshal(NewMessage(fr))
	if err != nil {
		return err
	}
	tok := s.client.Publish(TopicFor(s.topic, fr), 0, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", TopicFor(s.topic, fr))
	}
	return tok.Error()
}

// SendFrame queues fr for publishing.
func (s *Sink) SendFrame(fr can.Frame) error { return s.tx.SendFrame(fr) }

// Close stops the worker and disconnects from the broker.
func (s *Sink) Close() {
	s.tx.Close()
	s.client.Disconnect(250)
}
