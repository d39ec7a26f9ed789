package hostexec

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tiancaiamao/hostbridge/pkg/rpc"
)

type loopKey struct{}

// OnLoop reports whether ctx was handed out by an Executor to code running
// on the host loop.
func OnLoop(ctx context.Context) bool {
	on, _ := ctx.Value(loopKey{}).(bool)
	return on
}

// Executor schedules commands onto a Loop and dispatches them there.
type Executor struct {
	loop       *Loop
	dispatcher *rpc.Dispatcher
	log        *slog.Logger
	base       context.Context
}

// NewExecutor creates an executor dispatching through d on loop.
func NewExecutor(loop *Loop, d *rpc.Dispatcher, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		loop:       loop,
		dispatcher: d,
		log:        log.With("component", "executor"),
		base:       context.WithValue(context.Background(), loopKey{}, true),
	}
}

// Loop returns the underlying loop.
func (e *Executor) Loop() *Loop {
	return e.loop
}

// Schedule registers cmd with the loop and returns immediately. The command
// is dispatched on the loop and onComplete is called there with its
// response. Once scheduled a command cannot be cancelled.
func (e *Executor) Schedule(cmd rpc.Command, onComplete func(rpc.Response)) {
	queued := time.Now()
	e.loop.Register(func() (time.Duration, bool) {
		e.log.Debug("dispatching", "type", cmd.Type, "queued", time.Since(queued))
		resp := e.dispatcher.Dispatch(e.base, cmd)
		if onComplete != nil {
			onComplete(resp)
		}
		return 0, false
	})
}

// Call schedules cmd and waits for its response or for ctx to end. When
// ctx is already on the loop the command is dispatched inline, since
// waiting would deadlock.
func (e *Executor) Call(ctx context.Context, cmd rpc.Command) (rpc.Response, error) {
	if OnLoop(ctx) {
		return e.dispatcher.Dispatch(ctx, cmd), nil
	}

	done := make(chan rpc.Response, 1)
	e.Schedule(cmd, func(resp rpc.Response) { done <- resp })

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return rpc.Response{}, ctx.Err()
	}
}

// ErrLoopPanic is returned by Do when fn panicked.
var ErrLoopPanic = errors.New("host loop function panicked")

// Do runs fn on the loop and waits for it to return.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if OnLoop(ctx) {
		return fn(ctx)
	}

	done := make(chan error, 1)
	e.loop.Register(func() (time.Duration, bool) {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("loop function panicked", "panic", r)
				done <- ErrLoopPanic
			}
		}()
		done <- fn(e.base)
		return 0, false
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
