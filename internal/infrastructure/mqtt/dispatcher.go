package mqtt

import (
	"context"
	"sync"
)

// EventKind identifies the kind of connection event being dispatched.
// The set is closed; Dispatcher.handle switches over it exhaustively.
type EventKind int

const (
	// EventPublish is an inbound publish observed by a subscription.
	EventPublish EventKind = iota

	// EventConnAck is the broker's acknowledgment of a new connection.
	EventConnAck

	// EventOther covers every remaining event kind; logged and discarded.
	EventOther
)

// Event is one occurrence on a broker connection.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Detail  string
}

// CommandHandler consumes control-topic payloads. The dispatcher routes
// them without interpreting their content.
type CommandHandler interface {
	HandleCommand(ctx context.Context, payload []byte) error
}

// ValueSink receives every non-control inbound publish for retention.
type ValueSink interface {
	InsertValue(ctx context.Context, topic, payload string) error
}

// Dispatcher fans connection events out to independent handlers.
//
// Every event runs in its own goroutine: handlers may complete out of order
// relative to each other, and a handler failure (error or panic) is logged
// and isolated - it can never tear down the connection loop that produced
// the event. Events from a single connection are dispatched in the order
// the connection observed them.
type Dispatcher struct {
	controlTopic string
	commands     CommandHandler
	store        ValueSink
	logger       Logger

	// wg tracks in-flight handlers so shutdown and tests can drain them.
	wg sync.WaitGroup
}

// NewDispatcher creates an event dispatcher.
//
// Parameters:
//   - controlTopic: Exact topic whose publishes are routed to commands
//   - commands: Handler for control payloads (may be nil; control publishes
//     are then logged and dropped)
//   - store: Retention sink for all other publishes (may be nil)
//   - logger: Logger for handler failures (nil disables logging)
func NewDispatcher(controlTopic string, commands CommandHandler, store ValueSink, logger Logger) *Dispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Dispatcher{
		controlTopic: controlTopic,
		commands:     commands,
		store:        store,
		logger:       logger,
	}
}

// Dispatch hands an event to its own handler goroutine and returns
// immediately so the connection loop is never blocked.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("event handler panic recovered", "topic", ev.Topic, "panic", r)
			}
		}()
		d.handle(ctx, ev)
	}()
}

// Wait blocks until all in-flight handlers have completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// handle processes exactly one event.
func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventPublish:
		d.handlePublish(ctx, ev)
	case EventConnAck:
		d.logger.Info("connected to MQTT broker", "detail", ev.Detail)
	case EventOther:
		d.logger.Debug("unhandled connection event", "detail", ev.Detail)
	}
}

// handlePublish routes one inbound publish.
//
// Control-topic payloads go to command handling; everything else is
// persisted fire-and-forget. Failures are logged, never propagated.
func (d *Dispatcher) handlePublish(ctx context.Context, ev Event) {
	if ev.Topic == d.controlTopic {
		if d.commands == nil {
			d.logger.Warn("control message received with no command handler", "topic", ev.Topic)
			return
		}
		if err := d.commands.HandleCommand(ctx, ev.Payload); err != nil {
			d.logger.Error("command handling failed", "topic", ev.Topic, "error", err)
		}
		return
	}

	if d.store == nil {
		return
	}
	if err := d.store.InsertValue(ctx, ev.Topic, string(ev.Payload)); err != nil {
		d.logger.Error("persisting value failed", "topic", ev.Topic, "error", err)
	}
}
