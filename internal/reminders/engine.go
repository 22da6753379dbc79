package reminders

import (
	"context"
	"log/slog"

	"github.com/nugget/remora/internal/config"
	"github.com/nugget/remora/internal/events"
)

// Evaluation is the complete outcome of processing one message:
// everything the host needs for injection, parameter adjustment, and
// event logging, derived in a single pass.
type Evaluation struct {
	// MessageLen is the length of the evaluated message in bytes. The
	// message itself is not retained.
	MessageLen int `json:"message_len"`
	// Detected holds the matched context names in detection order.
	Detected []string `json:"detected"`
	// Decision is the resolved, deduplicated decision.
	Decision ResolvedDecision `json:"decision"`
	// Reminder is the rendered reminder text, or nil when no template
	// resolved. Nil always means no injection.
	Reminder *string `json:"reminder,omitempty"`
	// Injected reports whether the gate admitted the reminder.
	Injected bool `json:"injected"`
	// Temperature is the effective temperature for the host, nil when
	// adaptive mode is off or nothing declared one.
	Temperature *float64 `json:"temperature,omitempty"`
}

// DecisionRecorder persists evaluations. Satisfied by *eventlog.Store.
// Defined here so the engine depends only on the subset it needs.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, ev Evaluation) error
}

// Deps holds injected dependencies for the engine. Using a struct
// avoids a growing parameter list as the engine evolves. Every field
// may be left zero: the logger falls back to slog.Default, the bus is
// nil-safe, a nil recorder disables persistence, and a nil RandSource
// uses math/rand/v2.
type Deps struct {
	Logger     *slog.Logger
	Bus        *events.Bus
	Recorder   DecisionRecorder
	RandSource RandSource
}

// Engine is the per-message entry point for host integrations. It wires
// the three pure stages and the gate together, publishes bus events,
// and records decisions. Stateless across calls: concurrent Evaluate
// calls are fully independent.
type Engine struct {
	cfg  *config.Config
	gate *Gate
	deps Deps
}

// NewEngine creates an engine over a validated configuration.
func NewEngine(cfg *config.Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		cfg:  cfg,
		gate: NewGate(deps.RandSource),
		deps: deps,
	}
}

// Evaluate processes one message: detect, resolve, generate, gate. The
// returned evaluation is complete even when nothing is injected. When
// the engine is disabled in configuration, detection and resolution
// still run (the decision remains useful for diagnostics) but no
// reminder is generated and nothing is injected.
func (e *Engine) Evaluate(ctx context.Context, message string) (Evaluation, error) {
	matched := DetectContexts(message, e.cfg)
	resolved := ResolveContexts(matched, e.cfg)

	names := make([]string, len(matched))
	for i, mc := range matched {
		names[i] = mc.Name
	}

	ev := Evaluation{
		MessageLen: len(message),
		Detected:   names,
		Decision:   resolved,
	}

	if e.cfg.Adaptive {
		ev.Temperature = resolved.Temperature
	}

	if e.cfg.Enabled {
		ev.Reminder = GenerateReminder(resolved, e.cfg)
		ev.Injected = ev.Reminder != nil && e.gate.Allow(resolved.InjectionRate)
	}

	e.publish(ev)
	e.log(ev)

	if e.deps.Recorder != nil {
		if err := e.deps.Recorder.RecordDecision(ctx, ev); err != nil {
			// Persistence failure must not suppress the decision; the
			// host still needs it. Log and carry on.
			e.deps.Logger.Warn("failed to record decision", "error", err)
		}
	}

	return ev, nil
}

// Temperature runs detection and resolution only, for hosts that want
// parameter adjustment without regenerating reminder text. Returns nil
// when adaptive mode is off or no context declares a temperature.
func (e *Engine) Temperature(message string) *float64 {
	if !e.cfg.Adaptive {
		return nil
	}
	resolved := ResolveContexts(DetectContexts(message, e.cfg), e.cfg)
	return resolved.Temperature
}

func (e *Engine) publish(ev Evaluation) {
	e.deps.Bus.Publish(events.Event{
		Source: events.SourceEngine,
		Kind:   events.KindMessageEvaluated,
		Data: map[string]any{
			"detected":       ev.Detected,
			"context":        ev.Decision.Context,
			"injection_rate": ev.Decision.InjectionRate,
		},
	})

	kind := events.KindReminderSuppressed
	data := map[string]any{"context": ev.Decision.Context}
	if ev.Injected {
		kind = events.KindReminderInjected
		data["reminder_len"] = len(*ev.Reminder)
	}
	e.deps.Bus.Publish(events.Event{Source: events.SourceEngine, Kind: kind, Data: data})

	if ev.Temperature != nil {
		e.deps.Bus.Publish(events.Event{
			Source: events.SourceEngine,
			Kind:   events.KindTemperatureAdjusted,
			Data:   map[string]any{"temperature": *ev.Temperature, "context": ev.Decision.Context},
		})
	}
}

func (e *Engine) log(ev Evaluation) {
	attrs := []any{
		"detected", ev.Detected,
		"context", ev.Decision.Context,
		"injection_rate", ev.Decision.InjectionRate,
		"injected", ev.Injected,
	}
	if ev.Temperature != nil {
		attrs = append(attrs, "temperature", *ev.Temperature)
	}
	if ev.Reminder != nil {
		attrs = append(attrs, "reminder_len", len(*ev.Reminder))
	}
	e.deps.Logger.Debug("message evaluated", attrs...)
}
