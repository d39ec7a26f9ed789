package rpc

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one command. It runs on the host loop.
type Handler func(ctx context.Context, p Params) (any, error)

// FlagSource reports host-side feature flags. It is consulted on every
// dispatch, so implementations must be safe for concurrent use.
type FlagSource interface {
	Enabled(flag string) bool
}

// FlagFunc adapts a function to FlagSource.
type FlagFunc func(flag string) bool

func (f FlagFunc) Enabled(flag string) bool { return f(flag) }

// AllEnabled is a FlagSource with every feature turned on.
var AllEnabled FlagSource = FlagFunc(func(string) bool { return true })

// Registry maps command types to handlers. Handlers are split into an
// always-available set and sets guarded by a feature flag.
type Registry struct {
	mu     sync.RWMutex
	always map[string]Handler
	gated  map[string]map[string]Handler // flag -> type -> handler
	flags  []string                      // gated flag names, sorted
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		always: make(map[string]Handler),
		gated:  make(map[string]map[string]Handler),
	}
}

// Register adds an always-available handler.
func (r *Registry) Register(cmdType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeNew(cmdType)
	r.always[cmdType] = h
}

// RegisterGated adds a handler that is only available while flag is enabled.
func (r *Registry) RegisterGated(flag, cmdType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeNew(cmdType)

	set, ok := r.gated[flag]
	if !ok {
		set = make(map[string]Handler)
		r.gated[flag] = set
		r.flags = append(r.flags, flag)
		sort.Strings(r.flags)
	}
	set[cmdType] = h
}

func (r *Registry) mustBeNew(cmdType string) {
	if _, ok := r.always[cmdType]; ok {
		panic(fmt.Sprintf("rpc: handler %q registered twice", cmdType))
	}
	for _, set := range r.gated {
		if _, ok := set[cmdType]; ok {
			panic(fmt.Sprintf("rpc: handler %q registered twice", cmdType))
		}
	}
}

// Lookup resolves cmdType against the always-available set merged with
// every gated set whose flag is currently enabled. Each flag is read at
// most once.
func (r *Registry) Lookup(cmdType string, flags FlagSource) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.always[cmdType]; ok {
		return h, true
	}
	for _, flag := range r.flags {
		h, ok := r.gated[flag][cmdType]
		if !ok {
			continue
		}
		if flags != nil && flags.Enabled(flag) {
			return h, true
		}
		return nil, false
	}
	return nil, false
}

// Gate returns the flag guarding cmdType, or "" when it is always available.
func (r *Registry) Gate(cmdType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for flag, set := range r.gated {
		if _, ok := set[cmdType]; ok {
			return flag
		}
	}
	return ""
}

// Available lists the command types dispatchable under flags, sorted.
func (r *Registry) Available(flags FlagSource) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.always))
	for name := range r.always {
		names = append(names, name)
	}
	for _, flag := range r.flags {
		if flags == nil || !flags.Enabled(flag) {
			continue
		}
		for name := range r.gated[flag] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
