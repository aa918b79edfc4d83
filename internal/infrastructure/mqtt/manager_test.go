package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mqttvault/core/internal/infrastructure/config"
)

// fakeClient is an in-memory Client for exercising the connection manager
// without a broker.
type fakeClient struct {
	mu           sync.Mutex
	subscribed   []string
	subscribeErr error
	publishErr   error
	publishCalls int
	disconnected bool
}

func (f *fakeClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishCalls++
	return f.publishErr
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeClient) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subscribed))
	copy(out, f.subscribed)
	return out
}

// testMQTTConfig returns a reconnect configuration with a negligible base
// interval so retry loops complete quickly.
func testMQTTConfig(maxRetries int) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Name:           "test",
			Host:           "localhost",
			Port:           1883,
			ClientIDPrefix: "test",
		},
		QoS:       1,
		RootTopic: "vault",
		Reconnect: config.MQTTReconnectConfig{
			MaxRetries:      maxRetries,
			RetryIntervalMS: 1,
		},
	}
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	dialErr := errors.New("connection refused")
	var dials int

	m := NewManager(testMQTTConfig(3), RoleControl, nil, nil)
	m.dial = func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
		dials++
		return nil, nil, dialErr
	}

	err := m.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run() error = %v, want ErrRetriesExhausted", err)
	}
	if dials != 3 {
		t.Errorf("dial attempts = %d, want 3", dials)
	}

	state, reason := m.State()
	if state != StateError {
		t.Errorf("final state = %v, want %v", state, StateError)
	}
	if reason == "" {
		t.Error("expected failure reason to be recorded")
	}
}

func TestRunUsesFreshClientIDPerAttempt(t *testing.T) {
	seen := make(map[string]bool)

	m := NewManager(testMQTTConfig(3), RoleControl, nil, nil)
	m.dial = func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
		if seen[clientID] {
			t.Errorf("client ID %q reused across attempts", clientID)
		}
		seen[clientID] = true
		return nil, nil, errors.New("refused")
	}

	_ = m.Run(context.Background())

	if len(seen) != 3 {
		t.Errorf("distinct client IDs = %d, want 3", len(seen))
	}
}

func TestRunSubscribeFailureCountsAsAttempt(t *testing.T) {
	fc := &fakeClient{subscribeErr: errors.New("subscribe denied")}
	lostCh := make(chan error)
	var dials int

	m := NewManager(testMQTTConfig(2), RoleControl, nil, nil)
	m.dial = func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
		dials++
		if state, _ := m.State(); state != StateConnecting {
			t.Errorf("state during dial = %v, want %v", state, StateConnecting)
		}
		return fc, lostCh, nil
	}

	err := m.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run() error = %v, want ErrRetriesExhausted", err)
	}
	if dials != 2 {
		t.Errorf("dial attempts = %d, want 2", dials)
	}
	if !fc.disconnected {
		t.Error("expected client disconnect after failed subscribe")
	}

	// The manager must never report Connected when the subscribe failed.
	state, _ := m.State()
	if state == StateConnected {
		t.Error("state reached Connected despite subscribe failure")
	}
}

func TestRunConnectsAndStopsOnContextCancel(t *testing.T) {
	fc := &fakeClient{}
	lostCh := make(chan error)

	m := NewManager(testMQTTConfig(0), RoleControl, nil, nil)
	m.dial = func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
		return fc, lostCh, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitForState(t, m, StateConnected)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if !fc.disconnected {
		t.Error("expected client disconnect on shutdown")
	}
	state, _ := m.State()
	if state != StateDisconnected {
		t.Errorf("final state = %v, want %v", state, StateDisconnected)
	}
}

func TestRunResetsRetryBudgetAfterSuccess(t *testing.T) {
	// With a budget of 2: one failure, one success, one loss, one failure.
	// If the budget did not reset on success, the final attempt would
	// never happen.
	lostCh := make(chan error, 1)
	var dials int

	m := NewManager(testMQTTConfig(2), RoleControl, nil, nil)
	m.dial = func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
		dials++
		switch dials {
		case 1:
			return nil, nil, errors.New("refused")
		case 2:
			lostCh <- errors.New("broker went away")
			return &fakeClient{}, lostCh, nil
		default:
			return nil, nil, errors.New("refused")
		}
	}

	err := m.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run() error = %v, want ErrRetriesExhausted", err)
	}
	if dials != 4 {
		t.Errorf("dial attempts = %d, want 4", dials)
	}
}

func TestRunExhaustionSkipsFinalBackoff(t *testing.T) {
	cfg := testMQTTConfig(1)
	// Long enough that an extra backoff sleep after the final failed
	// attempt would stall the test.
	cfg.Reconnect.RetryIntervalMS = 600000

	m := NewManager(cfg, RoleControl, nil, nil)
	m.dial = func(config.MQTTConfig, string, *tls.Config) (Client, <-chan error, error) {
		return nil, nil, errors.New("refused")
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("Run() error = %v, want ErrRetriesExhausted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run slept through the backoff after the final failed attempt")
	}
}

func TestPublishUsesLiveConnectionUntilManagerCancelled(t *testing.T) {
	fc := &fakeClient{}
	lostCh := make(chan error)

	m := NewManager(testMQTTConfig(0), RoleControl, nil, nil)
	m.publishRetryWait = time.Millisecond
	m.dial = func(config.MQTTConfig, string, *tls.Config) (Client, <-chan error, error) {
		return fc, lostCh, nil
	}

	mgrCtx, cancelMgr := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(mgrCtx) }()
	waitForState(t, m, StateConnected)

	// A final status publish issued before the manager is cancelled must
	// ride the live connection, not the no-client retry path.
	m.Publish(context.Background(), "vault/status", 1, true, []byte("stopped"))
	if fc.publishCalls != 1 {
		t.Fatalf("publish calls while connected = %d, want 1", fc.publishCalls)
	}

	cancelMgr()
	<-done
	if !fc.disconnected {
		t.Error("expected disconnect after manager context cancellation")
	}

	// Once the manager is cancelled the client is gone; a late publish
	// never reaches it.
	lateCtx, cancelLate := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelLate()
	m.Publish(lateCtx, "vault/status", 1, true, []byte("late"))
	if fc.publishCalls != 1 {
		t.Errorf("publish calls after shutdown = %d, want still 1", fc.publishCalls)
	}
}

func TestRunSubscriptionsByRole(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want []string
	}{
		{"control role subscribes control topic only", RoleControl, []string{"vault/commands"}},
		{"monitor role adds the universal wildcard", RoleMonitor, []string{"vault/commands", "#"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{}
			lostCh := make(chan error)

			m := NewManager(testMQTTConfig(0), tt.role, nil, nil)
			m.dial = func(cfg config.MQTTConfig, clientID string, tlsCfg *tls.Config) (Client, <-chan error, error) {
				return fc, lostCh, nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- m.Run(ctx) }()

			waitForState(t, m, StateConnected)
			cancel()
			<-done

			got := fc.subscriptions()
			if len(got) != len(tt.want) {
				t.Fatalf("subscriptions = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("subscription[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRunFatalTLSConfig(t *testing.T) {
	cfg := testMQTTConfig(0)
	cfg.Broker.TLS = true
	cfg.Broker.CertFile = "/nonexistent/ca.pem"

	m := NewManager(cfg, RoleControl, nil, nil)
	m.dial = func(config.MQTTConfig, string, *tls.Config) (Client, <-chan error, error) {
		t.Fatal("dial must not be called when TLS configuration fails")
		return nil, nil, nil
	}

	err := m.Run(context.Background())
	if !errors.Is(err, ErrTLSConfig) {
		t.Fatalf("Run() error = %v, want ErrTLSConfig", err)
	}

	state, _ := m.State()
	if state != StateError {
		t.Errorf("state = %v, want %v", state, StateError)
	}
}

func TestNextInterval(t *testing.T) {
	tests := []struct {
		name    string
		current time.Duration
		want    time.Duration
	}{
		{"doubles below cap", time.Second, 2 * time.Second},
		{"doubles to exactly the cap", 30 * time.Second, 60 * time.Second},
		{"clamps above cap", 40 * time.Second, 60 * time.Second},
		{"stays at cap", 60 * time.Second, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextInterval(tt.current); got != tt.want {
				t.Errorf("nextInterval(%v) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}

// waitForState polls until the manager reaches the wanted state or times out.
func waitForState(t *testing.T, m *Manager, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := m.State(); state == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	state, reason := m.State()
	t.Fatalf("state = %v (%s), want %v", state, reason, want)
}
