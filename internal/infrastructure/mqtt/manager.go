package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mqttvault/core/internal/infrastructure/config"
)

// maxBackoffInterval caps the doubling retry interval.
const maxBackoffInterval = 60 * time.Second

// Logger is the logging interface consumed by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger discards all log output.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// ConnState is the connection lifecycle state of one Manager.
type ConnState int

const (
	// StateDisconnected is the initial state and the state after a lost connection.
	StateDisconnected ConnState = iota

	// StateConnecting is set while a connection attempt is in flight.
	StateConnecting

	// StateConnected is set only after a successful subscribe.
	StateConnected

	// StateError is set when a connect or subscribe attempt fails; the
	// manager retries from here until the budget is exhausted.
	StateError
)

// String returns the state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Role selects the subscription set of a connection.
type Role int

const (
	// RoleControl subscribes to the control topic only.
	RoleControl Role = iota

	// RoleMonitor additionally subscribes to the universal wildcard topic
	// to observe all broker traffic for the retention store.
	RoleMonitor
)

// Manager owns one broker connection and drives its reconnect/backoff
// state machine.
//
// Run is the long-lived driver loop; it returns only on a fatal condition
// (retry budget exhausted, fatal TLS configuration) or context cancellation.
// The connection state and the live client handle are each guarded by their
// own mutex; neither lock is held across network I/O.
type Manager struct {
	cfg        config.MQTTConfig
	role       Role
	dispatcher *Dispatcher
	logger     Logger

	// state is the connection lifecycle state, with the failure reason
	// when state is StateError.
	state       ConnState
	stateReason string
	stateMu     sync.Mutex

	// client is the live client handle; nil when not connected. Handlers
	// borrow it transiently for the duration of one publish call.
	client   Client
	clientMu sync.Mutex

	// dial establishes one connection attempt; replaced in tests.
	dial dialFunc

	// publishRetryWait is the pause between best-effort publish attempts.
	publishRetryWait time.Duration
}

// NewManager creates a connection manager for one broker.
//
// Parameters:
//   - cfg: Broker, credential, and reconnect configuration
//   - role: Subscription role (control or monitor)
//   - dispatcher: Receives every event observed on the connection
//   - logger: Structured logger (nil disables logging)
//
// Returns:
//   - *Manager: Manager ready for Run
func NewManager(cfg config.MQTTConfig, role Role, dispatcher *Dispatcher, logger Logger) *Manager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Manager{
		cfg:              cfg,
		role:             role,
		dispatcher:       dispatcher,
		logger:           logger,
		state:            StateDisconnected,
		dial:             pahoDial,
		publishRetryWait: defaultPublishRetryWait,
	}
}

// SetDispatcher wires the event dispatcher. The dispatcher often depends on
// handlers that publish through this manager, so it is attached after
// construction; it must be set before Run.
func (m *Manager) SetDispatcher(d *Dispatcher) {
	m.dispatcher = d
}

// State returns the current connection state and, for StateError, the reason.
func (m *Manager) State() (ConnState, string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state, m.stateReason
}

// setState transitions the connection state under the state mutex.
func (m *Manager) setState(state ConnState, reason string) {
	m.stateMu.Lock()
	m.state = state
	m.stateReason = reason
	m.stateMu.Unlock()
}

// currentClient returns the live client handle, or nil when disconnected.
func (m *Manager) currentClient() Client {
	m.clientMu.Lock()
	defer m.clientMu.Unlock()
	return m.client
}

// setClient replaces the live client handle.
func (m *Manager) setClient(client Client) {
	m.clientMu.Lock()
	m.client = client
	m.clientMu.Unlock()
}

// Run connects to the broker and serves the connection until a fatal
// condition or context cancellation.
//
// The loop implements the reconnect state machine:
//
//	Disconnected -> Connecting -> Connected
//	Connecting -> Error(reason) -> (backoff) -> Connecting
//	Connected -> Disconnected on connection loss -> (backoff) -> Connecting
//
// The retry interval starts at the configured base, doubles per consecutive
// failure, and is capped at 60 seconds; a successful subscribe resets it to
// the base. A non-positive max_retries means unlimited retries; otherwise
// Run returns ErrRetriesExhausted after exactly that many consecutive
// failures since the last success.
//
// Returns:
//   - error: ErrRetriesExhausted, a fatal ErrTLSConfig error, or ctx.Err()
func (m *Manager) Run(ctx context.Context) error {
	var tlsCfg *tls.Config
	if m.cfg.Broker.TLS {
		var err error
		tlsCfg, err = loadTLSConfig(m.cfg.Broker.CertFile)
		if err != nil {
			// Fatal configuration error: no retry.
			m.setState(StateError, err.Error())
			return err
		}
	}

	base := time.Duration(m.cfg.Reconnect.RetryIntervalMS) * time.Millisecond
	interval := base
	retries := 0
	maxRetries := m.cfg.Reconnect.MaxRetries

	for {
		if maxRetries > 0 && retries >= maxRetries {
			m.logger.Error("maximum reconnect attempts reached, stopping",
				"broker", m.brokerAddr(),
				"attempts", retries,
			)
			return fmt.Errorf("%w: %d attempts to %s", ErrRetriesExhausted, retries, m.brokerAddr())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.setState(StateConnecting, "")

		// A fresh identity per attempt: brokers drop the previous session
		// for a reused client ID, which would mask reconnect bugs.
		clientID := fmt.Sprintf("%s-%s", m.cfg.Broker.ClientIDPrefix, uuid.NewString())
		m.logger.Debug("connecting to MQTT broker", "broker", m.brokerAddr(), "client_id", clientID)

		client, lostCh, err := m.dial(m.cfg, clientID, tlsCfg)
		if err != nil {
			m.logger.Error("connection attempt failed", "broker", m.brokerAddr(), "error", err)
			m.setState(StateError, err.Error())
			retries++
			// The final failed attempt exhausts the budget without a
			// trailing backoff sleep.
			if maxRetries > 0 && retries >= maxRetries {
				continue
			}
			if !m.sleep(ctx, interval) {
				return ctx.Err()
			}
			interval = nextInterval(interval)
			continue
		}

		if err := m.subscribe(client); err != nil {
			m.logger.Error("subscribe failed", "broker", m.brokerAddr(), "error", err)
			m.setState(StateError, err.Error())
			client.Disconnect()
			retries++
			if maxRetries > 0 && retries >= maxRetries {
				continue
			}
			if !m.sleep(ctx, interval) {
				return ctx.Err()
			}
			interval = nextInterval(interval)
			continue
		}

		m.setClient(client)
		m.setState(StateConnected, "")
		interval = base
		retries = 0
		m.logger.Info("MQTT connection established", "broker", m.brokerAddr(), "client_id", clientID)

		if m.dispatcher != nil {
			m.dispatcher.Dispatch(ctx, Event{Kind: EventConnAck, Detail: clientID})
		}

		select {
		case <-ctx.Done():
			m.setClient(nil)
			client.Disconnect()
			m.setState(StateDisconnected, "")
			return ctx.Err()
		case lostErr := <-lostCh:
			m.setClient(nil)
			m.setState(StateDisconnected, "")
			m.logger.Warn("lost connection to MQTT broker",
				"broker", m.brokerAddr(),
				"error", lostErr,
				"retry_in", interval.String(),
			)
			retries++
			if maxRetries > 0 && retries >= maxRetries {
				continue
			}
			if !m.sleep(ctx, interval) {
				return ctx.Err()
			}
			interval = nextInterval(interval)
		}
	}
}

// subscribe establishes the role's subscriptions on a fresh connection.
//
// The control topic is subscribed at QoS 1 (commands must survive one
// delivery failure); the monitor role adds the universal wildcard at QoS 0.
// Any failure counts as a failed connection attempt.
func (m *Manager) subscribe(client Client) error {
	handler := func(topic string, payload []byte) {
		if m.dispatcher != nil {
			m.dispatcher.Dispatch(context.Background(), Event{
				Kind:    EventPublish,
				Topic:   topic,
				Payload: payload,
			})
		}
	}

	controlTopic := NewTopics(m.cfg.RootTopic).Commands()
	if err := client.Subscribe(controlTopic, 1, handler); err != nil {
		return fmt.Errorf("control topic %q: %w", controlTopic, err)
	}

	if m.role == RoleMonitor {
		if err := client.Subscribe(TopicWildcardAll, 0, handler); err != nil {
			return fmt.Errorf("wildcard topic: %w", err)
		}
	}

	return nil
}

// sleep waits for the given duration, returning false if the context is
// cancelled first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// brokerAddr formats the broker address for logging.
func (m *Manager) brokerAddr() string {
	return fmt.Sprintf("%s:%d", m.cfg.Broker.Host, m.cfg.Broker.Port)
}

// nextInterval doubles a backoff interval, capped at maxBackoffInterval.
func nextInterval(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoffInterval {
		return maxBackoffInterval
	}
	return next
}
