package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var errNotConnected = errors.New("mqtt not connected")

type EmitterConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Emitter publishes analysis results as JSON to {TopicPrefix}/{baseName}.
type Emitter struct {
	cfg    EmitterConfig
	client pahomqtt.Client
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewEmitter(cfg EmitterConfig, logger *zap.Logger) *Emitter {
	return &Emitter{cfg: cfg, logger: logger}
}

func (e *Emitter) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(pahomqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established", zap.String("broker", e.cfg.Broker))
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect", zap.Error(err))
	}

	e.client = pahomqtt.NewClient(opts)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *Emitter) EmitAnalysis(_ context.Context, baseName string, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return errNotConnected
	}

	topic := e.Topic(baseName)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.logger.Debug("analysis published", zap.String("topic", topic), zap.Int("size", len(payload)))
	return nil
}

func (e *Emitter) Topic(baseName string) string {
	return strings.TrimRight(e.cfg.TopicPrefix, "/") + "/" + baseName
}

func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.setConnected(false)

	s := e.Stats()
	e.logger.Info("mqtt emitter stopped",
		zap.Uint64("published", s.Published),
		zap.Uint64("errors", s.Errors),
	)
}

type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
