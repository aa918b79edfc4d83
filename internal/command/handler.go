package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mqttvault/core/internal/infrastructure/mqtt"
	"github.com/mqttvault/core/internal/progress"
)

// Command actions accepted on the control topic.
const (
	actionStart = "start"
	actionStop  = "stop"
)

// Telemetry is the subset of telemetry publishing the handler needs.
type Telemetry interface {
	PublishStatus(ctx context.Context, status, details string)
	PublishAnalytics(ctx context.Context, event, details string)
}

// Handler interprets control-topic command payloads.
//
// Payloads arrive as JSON envelopes with an action and optional nested
// options. Malformed payloads and unknown actions are reported back over
// the status topic and never escalate past the dispatcher.
type Handler struct {
	registry  *progress.Registry
	telemetry Telemetry
	logger    mqtt.Logger
}

// NewHandler creates a control command handler.
func NewHandler(registry *progress.Registry, telemetry Telemetry, logger mqtt.Logger) *Handler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Handler{registry: registry, telemetry: telemetry, logger: logger}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// HandleCommand parses and executes one control payload.
//
// Returns:
//   - error: Parse or execution failure; the dispatcher logs it and moves on
func (h *Handler) HandleCommand(ctx context.Context, payload []byte) error {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("parsing command payload: %w", err)
	}

	switch req.Action {
	case actionStart:
		return h.handleStart(ctx, req.Options)
	case actionStop:
		return h.handleStop(ctx, req.Options)
	default:
		h.telemetry.PublishStatus(ctx, "error", fmt.Sprintf("unknown action %q", req.Action))
		return fmt.Errorf("unknown action %q", req.Action)
	}
}

// handleStart registers a progress tracker for a new upload task.
// A task ID is generated when the request does not carry one.
func (h *Handler) handleStart(ctx context.Context, opts *Options) error {
	taskID := ""
	var total int64
	if opts != nil {
		taskID = opts.TaskID
		total = int64(len(opts.Files))
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	h.registry.Register(taskID, total)
	h.logger.Info("upload task started", "task_id", taskID, "files", total)

	h.telemetry.PublishStatus(ctx, "started", taskID)
	h.telemetry.PublishAnalytics(ctx, "upload_started", taskID)
	return nil
}

// handleStop cancels a running task's tracker and removes it.
func (h *Handler) handleStop(ctx context.Context, opts *Options) error {
	if opts == nil || opts.TaskID == "" {
		h.telemetry.PublishStatus(ctx, "error", "stop requires a task_id")
		return fmt.Errorf("stop command without task_id")
	}

	if !h.registry.Stop(opts.TaskID) {
		h.telemetry.PublishStatus(ctx, "error", fmt.Sprintf("unknown task %q", opts.TaskID))
		return fmt.Errorf("unknown task %q", opts.TaskID)
	}

	h.logger.Info("upload task stopped", "task_id", opts.TaskID)
	h.telemetry.PublishStatus(ctx, "stopped", opts.TaskID)
	h.telemetry.PublishAnalytics(ctx, "upload_stopped", opts.TaskID)
	return nil
}
