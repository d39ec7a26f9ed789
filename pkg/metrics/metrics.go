// Package metrics aggregates per-command statistics and serves them over
// HTTP as JSON and in the Prometheus text format.
package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

type commandStats struct {
	calls    int64
	failures int64
	total    time.Duration
	max      time.Duration
	last     time.Time
}

// Metrics collects command and relay statistics. It is safe for
// concurrent use and implements rpc.Recorder.
type Metrics struct {
	mu       sync.RWMutex
	start    time.Time
	commands map[string]*commandStats

	relayByStatus map[int]int64
	relayTotal    time.Duration
	relayCount    int64
}

// New creates an empty collector.
func New() *Metrics {
	return &Metrics{
		start:         time.Now(),
		commands:      make(map[string]*commandStats),
		relayByStatus: make(map[int]int64),
	}
}

// RecordCommand records one dispatched or relayed command.
func (m *Metrics) RecordCommand(cmdType string, elapsed time.Duration, err error) {
	if cmdType == "" {
		cmdType = "unknown"
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.commands[cmdType]
	if !ok {
		s = &commandStats{}
		m.commands[cmdType] = s
	}
	s.calls++
	if err != nil {
		s.failures++
	}
	s.total += elapsed
	s.max = max(s.max, elapsed)
	s.last = time.Now()
}

// RecordRelay records one relay HTTP request by response status.
func (m *Metrics) RecordRelay(status int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayByStatus[status]++
	m.relayTotal += elapsed
	m.relayCount++
}

// CommandSnapshot is a point-in-time view of one command type.
type CommandSnapshot struct {
	Name              string    `json:"name"`
	CallCount         int64     `json:"callCount"`
	SuccessCount      int64     `json:"successCount"`
	FailCount         int64     `json:"failCount"`
	SuccessRate       float64   `json:"successRate"`
	AverageDurationMs float64   `json:"averageDurationMs"`
	MaxDurationMs     float64   `json:"maxDurationMs"`
	LastCall          time.Time `json:"lastCall"`
}

// RelaySnapshot summarizes relay traffic.
type RelaySnapshot struct {
	Requests          int64            `json:"requests"`
	ByStatus          map[string]int64 `json:"byStatus"`
	AverageDurationMs float64          `json:"averageDurationMs"`
}

// Snapshot is the full metrics view.
type Snapshot struct {
	Uptime   time.Duration     `json:"uptime"`
	Commands []CommandSnapshot `json:"commands"`
	Relay    RelaySnapshot     `json:"relay"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (s *commandStats) snapshot(name string) CommandSnapshot {
	out := CommandSnapshot{
		Name:          name,
		CallCount:     s.calls,
		SuccessCount:  s.calls - s.failures,
		FailCount:     s.failures,
		MaxDurationMs: millis(s.max),
		LastCall:      s.last,
	}
	if s.calls > 0 {
		out.SuccessRate = float64(out.SuccessCount) / float64(s.calls)
		out.AverageDurationMs = millis(s.total) / float64(s.calls)
	}
	return out
}

// Command returns the snapshot for one command type.
func (m *Metrics) Command(name string) CommandSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.commands[name]; ok {
		return s.snapshot(name)
	}
	return CommandSnapshot{Name: name}
}

// Commands returns snapshots for every command seen, sorted by name.
func (m *Metrics) Commands() []CommandSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CommandSnapshot, 0, len(m.commands))
	for name, s := range m.commands {
		out = append(out, s.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Relay returns the relay traffic summary.
func (m *Metrics) Relay() RelaySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := RelaySnapshot{Requests: m.relayCount, ByStatus: make(map[string]int64, len(m.relayByStatus))}
	for code, n := range m.relayByStatus {
		out.ByStatus[statusKey(code)] = n
	}
	if m.relayCount > 0 {
		out.AverageDurationMs = millis(m.relayTotal) / float64(m.relayCount)
	}
	return out
}

// Uptime returns the time since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.start)
}

// Snapshot returns everything at once.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Uptime:   m.Uptime(),
		Commands: m.Commands(),
		Relay:    m.Relay(),
	}
}

// Reset clears all statistics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = time.Now()
	m.commands = make(map[string]*commandStats)
	m.relayByStatus = make(map[int]int64)
	m.relayTotal = 0
	m.relayCount = 0
}

func statusKey(code int) string {
	if code < 100 || code > 999 {
		return "other"
	}
	return strconv.Itoa(code)
}
