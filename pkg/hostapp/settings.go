package hostapp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tiancaiamao/hostbridge/pkg/config"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
)

// knownFlags are the feature flags operators may toggle.
var knownFlags = []string{rpc.FlagPolyHaven, rpc.FlagHyper3D}

// Settings is the host's mutable configuration. Operators change it at any
// time; the dispatcher reads flags through Enabled on every gated call.
type Settings struct {
	mu         sync.RWMutex
	address    string
	port       int
	flags      map[string]bool
	hyper3DKey string
}

// NewSettings seeds settings from the host configuration.
func NewSettings(cfg config.HostConfig) *Settings {
	return &Settings{
		address: cfg.Address,
		port:    cfg.Port,
		flags: map[string]bool{
			rpc.FlagPolyHaven: cfg.UsePolyHaven,
			rpc.FlagHyper3D:   cfg.UseHyper3D,
		},
		hyper3DKey: cfg.Hyper3DKey,
	}
}

// Enabled implements rpc.FlagSource.
func (s *Settings) Enabled(flag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[flag]
}

// SetFlag turns a feature flag on or off.
func (s *Settings) SetFlag(flag string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[flag]; !ok {
		return fmt.Errorf("unknown flag %q (known: %v)", flag, knownFlags)
	}
	s.flags[flag] = on
	return nil
}

// Flags returns a copy of all flags.
func (s *Settings) Flags() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// FlagNames returns the known flag names, sorted.
func (s *Settings) FlagNames() []string {
	names := append([]string(nil), knownFlags...)
	sort.Strings(names)
	return names
}

// Address returns the command server listen host.
func (s *Settings) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Port returns the command server port.
func (s *Settings) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// SetPort changes the port used the next time the server starts.
func (s *Settings) SetPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port out of range: %d", port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = port
	return nil
}

// Hyper3DKey returns the Hyper3D API key.
func (s *Settings) Hyper3DKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hyper3DKey
}

// SetHyper3DKey replaces the Hyper3D API key.
func (s *Settings) SetHyper3DKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hyper3DKey = key
}
