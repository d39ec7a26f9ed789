package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Handler provides HTTP endpoints for metrics.
type Handler struct {
	metrics *Metrics
}

// NewHandler creates a new metrics HTTP handler.
func NewHandler(m *Metrics) *Handler {
	return &Handler{metrics: m}
}

// RegisterRoutes registers metrics endpoints with mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /metrics/{$}", h.handleMetrics)
	mux.HandleFunc("GET /metrics/commands", h.handleCommands)
	mux.HandleFunc("GET /metrics/relay", h.handleRelay)
	mux.HandleFunc("GET /metrics/health", h.handleHealth)

	// Prometheus-style metrics (text format)
	mux.HandleFunc("GET /metrics/prometheus", h.handlePrometheus)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.metrics.Snapshot())
}

// handleCommands returns all command metrics, or one with ?command=.
func (h *Handler) handleCommands(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("command"); name != "" {
		writeJSON(w, h.metrics.Command(name))
		return
	}
	writeJSON(w, h.metrics.Commands())
}

func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.metrics.Relay())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	var calls, failures int64
	for _, c := range h.metrics.Commands() {
		calls += c.CallCount
		failures += c.FailCount
	}
	writeJSON(w, struct {
		Status   string        `json:"status"`
		Uptime   time.Duration `json:"uptime"`
		Commands int64         `json:"commands"`
		Failures int64         `json:"failures"`
	}{
		Status:   "healthy",
		Uptime:   h.metrics.Uptime(),
		Commands: calls,
		Failures: failures,
	})
}

// handlePrometheus returns metrics in Prometheus text format.
func (h *Handler) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	WritePrometheus(w, h.metrics.Snapshot())
}

// WritePrometheus renders snap in the Prometheus text exposition format.
func WritePrometheus(w io.Writer, snap Snapshot) {
	fmt.Fprintf(w, "# HELP hostbridge_uptime_seconds Process uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE hostbridge_uptime_seconds gauge\n")
	fmt.Fprintf(w, "hostbridge_uptime_seconds %.2f\n", snap.Uptime.Seconds())

	if len(snap.Commands) > 0 {
		fmt.Fprintf(w, "\n# HELP hostbridge_commands_total Commands handled, by type and outcome\n")
		fmt.Fprintf(w, "# TYPE hostbridge_commands_total counter\n")
		for _, c := range snap.Commands {
			name := sanitizeMetricName(c.Name)
			fmt.Fprintf(w, "hostbridge_commands_total{command=\"%s\",status=\"success\"} %d\n", name, c.SuccessCount)
			fmt.Fprintf(w, "hostbridge_commands_total{command=\"%s\",status=\"error\"} %d\n", name, c.FailCount)
		}

		fmt.Fprintf(w, "\n# HELP hostbridge_command_duration_seconds Command duration in seconds\n")
		fmt.Fprintf(w, "# TYPE hostbridge_command_duration_seconds summary\n")
		for _, c := range snap.Commands {
			name := sanitizeMetricName(c.Name)
			fmt.Fprintf(w, "hostbridge_command_duration_seconds_sum{command=\"%s\"} %.6f\n",
				name, c.AverageDurationMs*float64(c.CallCount)/1000)
			fmt.Fprintf(w, "hostbridge_command_duration_seconds_count{command=\"%s\"} %d\n", name, c.CallCount)
		}

		fmt.Fprintf(w, "\n# HELP hostbridge_command_duration_max_seconds Slowest call per command\n")
		fmt.Fprintf(w, "# TYPE hostbridge_command_duration_max_seconds gauge\n")
		for _, c := range snap.Commands {
			fmt.Fprintf(w, "hostbridge_command_duration_max_seconds{command=\"%s\"} %.6f\n",
				sanitizeMetricName(c.Name), c.MaxDurationMs/1000)
		}
	}

	if snap.Relay.Requests > 0 {
		codes := make([]string, 0, len(snap.Relay.ByStatus))
		for code := range snap.Relay.ByStatus {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		fmt.Fprintf(w, "\n# HELP hostbridge_relay_requests_total Relay requests by HTTP status\n")
		fmt.Fprintf(w, "# TYPE hostbridge_relay_requests_total counter\n")
		for _, code := range codes {
			fmt.Fprintf(w, "hostbridge_relay_requests_total{code=\"%s\"} %d\n", code, snap.Relay.ByStatus[code])
		}
	}
}

// sanitizeMetricName sanitizes a command name for Prometheus labels.
func sanitizeMetricName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	result := b.String()
	if len(result) > 0 && result[0] >= '0' && result[0] <= '9' {
		result = "_" + result
	}
	return result
}
