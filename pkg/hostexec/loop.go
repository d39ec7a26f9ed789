// Package hostexec runs work on the host application's single execution
// context.
//
// Loop models a cooperative host event loop with a timer-registration API:
// any goroutine may register a callback, and the loop goroutine runs it
// later, between its own per-tick work. Every callback runs to completion
// before the next one starts, so a callback that blocks stalls the host.
package hostexec

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// DefaultTickInterval is how long an idle loop sleeps between ticks.
const DefaultTickInterval = 10 * time.Millisecond

// Callback is a registered timer function. Returning rearm=true schedules it
// again after the returned delay.
type Callback func() (again time.Duration, rearm bool)

type timer struct {
	due time.Time
	seq uint64
	fn  Callback
}

// Loop is a cooperative single-threaded loop.
type Loop struct {
	tick time.Duration
	log  *slog.Logger

	mu      sync.Mutex
	pending []timer
	seq     uint64
	onTick  []func()
	wake    chan struct{}

	ticks uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTickInterval sets the idle sleep between ticks.
func WithTickInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.tick = d
		}
	}
}

// WithLoopLogger sets the logger used for recovered callback panics.
func WithLoopLogger(log *slog.Logger) LoopOption {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoop creates an idle loop. Nothing runs until Run or Step is called.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		tick: DefaultTickInterval,
		log:  slog.Default(),
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register queues fn to run on the loop as soon as possible. It may be
// called from any goroutine, including from inside a callback; in that case
// fn runs on a later iteration.
func (l *Loop) Register(fn Callback) {
	l.RegisterAfter(0, fn)
}

// RegisterAfter queues fn to run once delay has elapsed.
func (l *Loop) RegisterAfter(delay time.Duration, fn Callback) {
	l.mu.Lock()
	l.seq++
	l.pending = append(l.pending, timer{due: time.Now().Add(delay), seq: l.seq, fn: fn})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// OnTick adds host work executed once per loop iteration after callbacks.
func (l *Loop) OnTick(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTick = append(l.onTick, fn)
}

// Pending returns the number of registered callbacks not yet run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Ticks returns the number of completed iterations.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Step runs one iteration: every callback due now, in registration order,
// then the tick hooks. It returns the number of callbacks run. Step must
// only be called from the goroutine that owns the loop.
func (l *Loop) Step() int {
	now := time.Now()

	l.mu.Lock()
	var due, later []timer
	for _, t := range l.pending {
		if !t.due.After(now) {
			due = append(due, t)
		} else {
			later = append(later, t)
		}
	}
	l.pending = later
	hooks := append([]func(){}, l.onTick...)
	l.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})

	for _, t := range due {
		if again, rearm := l.runCallback(t.fn); rearm {
			l.RegisterAfter(again, t.fn)
		}
	}
	for _, hook := range hooks {
		l.runHook(hook)
	}

	l.mu.Lock()
	l.ticks++
	l.mu.Unlock()
	return len(due)
}

func (l *Loop) runCallback(fn Callback) (again time.Duration, rearm bool) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("host callback panicked", "panic", r)
			again, rearm = 0, false
		}
	}()
	return fn()
}

func (l *Loop) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("host tick hook panicked", "panic", r)
		}
	}()
	fn()
}

// nextWait returns how long the loop may sleep before the next timer is due.
func (l *Loop) nextWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	wait := l.tick
	now := time.Now()
	for _, t := range l.pending {
		if d := t.due.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Run drives the loop on the calling goroutine, locked to its OS thread,
// until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		l.Step()

		wait := l.nextWait()
		if wait == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-l.wake:
			t.Stop()
		case <-t.C:
		}
	}
}
