package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mqttvault/core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout is the maximum time to wait for subscribe/publish acknowledgment.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 10 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// MessageHandler is the callback signature for received messages.
type MessageHandler func(topic string, payload []byte)

// Client is the narrow broker-client surface the connection manager drives.
// The production implementation wraps paho.mqtt.golang; tests substitute a
// fake to exercise the reconnect state machine without a broker.
type Client interface {
	// Subscribe registers a handler for messages matching the topic filter.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish sends one message. It blocks until the broker acknowledges
	// the message (per QoS) or the operation times out.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Disconnect closes the connection, allowing queued work to drain briefly.
	Disconnect()
}

// dialFunc establishes one broker connection attempt.
//
// On success it returns the live client and a channel that receives the
// error when the connection is subsequently lost. On failure it returns a
// non-nil error and the attempt counts toward the retry budget.
type dialFunc func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error)

// pahoClient adapts a paho client to the Client interface.
type pahoClient struct {
	client pahomqtt.Client
}

// pahoDial is the production dialFunc. It builds client options from
// configuration and performs a blocking connect.
//
// Auto-reconnect is deliberately disabled: the Manager owns the reconnect
// state machine and backoff policy, and paho's built-in retry would fight it.
func pahoDial(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}

	// Buffered so the paho callback never blocks if the manager is already
	// tearing the connection down.
	lostCh := make(chan error, 1)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		select {
		case lostCh <- err:
		default:
		}
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &pahoClient{client: client}, lostCh, nil
}

// Subscribe registers a handler for messages on the specified topic filter.
func (c *pahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Publish sends a message and waits for broker acknowledgment.
func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Disconnect closes the connection with a short quiesce period.
func (c *pahoClient) Disconnect() {
	c.client.Disconnect(defaultDisconnectQuiesce)
}

// loadTLSConfig reads the CA certificate synchronously and builds the TLS
// configuration. An unreadable certificate is a fatal configuration error:
// the caller must not retry.
func loadTLSConfig(certFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading certificate %s: %w", ErrTLSConfig, certFile, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no valid certificates in %s", ErrTLSConfig, certFile)
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tlsMinVersion,
	}, nil
}
