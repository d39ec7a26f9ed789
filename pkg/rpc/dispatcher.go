package rpc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tiancaiamao/hostbridge/pkg/rpc"

// Recorder receives one observation per dispatched command.
type Recorder interface {
	RecordCommand(cmdType string, elapsed time.Duration, err error)
}

// Dispatcher routes commands to registry handlers and converts every
// outcome into a Response. Nothing a handler does escapes Dispatch.
type Dispatcher struct {
	registry *Registry
	flags    FlagSource
	log      *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// NewDispatcher creates a dispatcher over registry. flags is read on every
// dispatch; nil disables all gated sets.
func NewDispatcher(registry *Registry, flags FlagSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		flags:    flags,
		log:      slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Flags returns the flag source consulted on dispatch.
func (d *Dispatcher) Flags() FlagSource {
	return d.flags
}

// Dispatch executes cmd and returns its Response. The command id is echoed.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Response {
	result, err := d.Call(ctx, cmd)
	if err != nil {
		return ErrorResponse(cmd.ID, err.Error())
	}
	return SuccessResponse(cmd.ID, result)
}

// Call executes cmd. A non-nil error is always a *DispatchError.
func (d *Dispatcher) Call(ctx context.Context, cmd Command) (result any, err error) {
	ctx, span := d.tracer.Start(ctx, "dispatch "+cmd.Type,
		trace.WithAttributes(attribute.String("hostbridge.command", cmd.Type)))
	start := time.Now()
	defer func() {
		if d.recorder != nil {
			d.recorder.RecordCommand(cmd.Type, time.Since(start), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handler, ok := d.registry.Lookup(cmd.Type, d.flags)
	if !ok {
		d.log.Warn("unknown command", "type", cmd.Type)
		return nil, unknownCommand(cmd.Type)
	}

	d.log.Debug("executing command", "type", cmd.Type, "id", cmd.ID)
	out, herr := invoke(ctx, handler, cmd.Params)
	if herr != nil {
		de := handlerFailed(cmd.Type, herr)
		d.log.Error("command failed", "type", cmd.Type, "error", de.Message)
		if de.Stack != "" {
			d.log.Debug("command failure trace", "type", cmd.Type, "stack", de.Stack)
		}
		return nil, de
	}
	return out, nil
}

func invoke(ctx context.Context, h Handler, p Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = panicError(r)
		}
	}()
	if p == nil {
		p = Params{}
	}
	return h(ctx, p)
}
