package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mqttvault/core/internal/infrastructure/mqtt"
)

type fakeGateway struct {
	mu       sync.Mutex
	messages []fakeMessage
}

type fakeMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (g *fakeGateway) Publish(_ context.Context, topic string, qos byte, retained bool, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, fakeMessage{topic, qos, retained, payload})
}

func (g *fakeGateway) all() []fakeMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]fakeMessage, len(g.messages))
	copy(out, g.messages)
	return out
}

func newTestPublisher() (*Publisher, *fakeGateway) {
	gw := &fakeGateway{}
	return NewPublisher(gw, mqtt.NewTopics("vault"), 1, nil), gw
}

func TestPublishLog(t *testing.T) {
	p, gw := newTestPublisher()
	p.PublishLog(context.Background(), "error", "disk full")

	msgs := gw.all()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].topic != "vault/logs" {
		t.Errorf("topic = %q, want %q", msgs[0].topic, "vault/logs")
	}
	if msgs[0].qos != 1 || !msgs[0].retained {
		t.Errorf("qos/retained = %d/%v, want 1/true", msgs[0].qos, msgs[0].retained)
	}

	var got map[string]string
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if got["level"] != "error" || got["message"] != "disk full" {
		t.Errorf("payload = %v, want level=error message=disk full", got)
	}
}

func TestPublishStatus(t *testing.T) {
	p, gw := newTestPublisher()
	p.PublishStatus(context.Background(), "running", "service operational")

	msgs := gw.all()
	if len(msgs) != 1 || msgs[0].topic != "vault/status" {
		t.Fatalf("messages = %v, want one on vault/status", msgs)
	}

	var got map[string]string
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if got["status"] != "running" || got["details"] != "service operational" {
		t.Errorf("payload = %v", got)
	}
}

func TestPublishProgress(t *testing.T) {
	p, gw := newTestPublisher()
	p.PublishProgress(context.Background(), 50, 200, 25)

	msgs := gw.all()
	if len(msgs) != 1 || msgs[0].topic != "vault/progress" {
		t.Fatalf("messages = %v, want one on vault/progress", msgs)
	}

	var got struct {
		Progress   int64   `json:"progress"`
		Total      int64   `json:"total"`
		Percentage float64 `json:"percentage"`
	}
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if got.Progress != 50 || got.Total != 200 || got.Percentage != 25 {
		t.Errorf("payload = %+v, want 50/200/25", got)
	}
}

func TestPublishAnalytics(t *testing.T) {
	p, gw := newTestPublisher()
	p.PublishAnalytics(context.Background(), "upload_complete", "42 files")

	msgs := gw.all()
	if len(msgs) != 1 || msgs[0].topic != "vault/analytics" {
		t.Fatalf("messages = %v, want one on vault/analytics", msgs)
	}

	var got map[string]string
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if got["event"] != "upload_complete" || got["details"] != "42 files" {
		t.Errorf("payload = %v", got)
	}
}

func TestRunStatusLoopPublishesUntilCancelled(t *testing.T) {
	p, gw := newTestPublisher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunStatusLoop(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(gw.all()) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("status loop did not stop after context cancellation")
	}

	msgs := gw.all()
	if len(msgs) < 2 {
		t.Fatalf("heartbeats = %d, want at least 2", len(msgs))
	}
	for _, msg := range msgs {
		if msg.topic != "vault/status" {
			t.Errorf("heartbeat topic = %q, want %q", msg.topic, "vault/status")
		}
	}
}
