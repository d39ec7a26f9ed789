package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tiancaiamao/hostbridge/pkg/metrics"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/tools"
)

const tracerName = "github.com/tiancaiamao/hostbridge/pkg/relay"

// Messages returned for requests the relay rejects itself.
const (
	MsgInvalidRequest = "Invalid request format, 'type' is required."
	MsgBodyTooLarge   = "Request body exceeds the 8 MiB limit."
)

const (
	maxBodyBytes    = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP relay.
type Server struct {
	client  *HostClient
	catalog *tools.Registry
	metrics *metrics.Metrics
	tracer  trace.Tracer
	log     *slog.Logger
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records relay traffic into m and mounts its routes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCatalog overrides the tool list served on /tools.
func WithCatalog(c *tools.Registry) Option {
	return func(s *Server) { s.catalog = c }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewServer creates a relay forwarding through client.
func NewServer(client *HostClient, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		client:  client,
		catalog: tools.Catalog(),
		tracer:  otel.Tracer(tracerName),
		log:     log.With("component", "relay"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /run-tool", s.handleRunTool)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /tools", s.handleTools)
	if s.metrics != nil {
		metrics.NewHandler(s.metrics).RegisterRoutes(s.mux)
	}
	return s
}

// Handler returns the relay's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

type runToolRequest struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := uuid.NewString()
	log := s.log.With("request", reqID)

	status, cmdType, err := s.runTool(w, r, log)
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordRelay(status, elapsed)
		if cmdType != "" {
			s.metrics.RecordCommand(cmdType, elapsed, err)
		}
	}
	log.Info("relayed", "type", cmdType, "status", status, "elapsed", elapsed)
}

func (s *Server) runTool(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int, string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, rpc.ErrorResponse("", MsgBodyTooLarge))
			return http.StatusRequestEntityTooLarge, "", err
		}
		writeJSON(w, http.StatusBadRequest, rpc.ErrorResponse("", err.Error()))
		return http.StatusBadRequest, "", err
	}

	var req runToolRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, rpc.ErrorResponse("", MsgInvalidRequest))
		return http.StatusBadRequest, "", errors.New(MsgInvalidRequest)
	}

	ctx, span := s.tracer.Start(r.Context(), "relay "+req.Type,
		trace.WithAttributes(attribute.String("hostbridge.command", req.Type)))
	defer span.End()

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		writeJSON(w, http.StatusBadRequest, rpc.ErrorResponse("", MsgInvalidRequest))
		return http.StatusBadRequest, req.Type, err
	}

	log.Debug("forwarding", "type", req.Type, "host", s.client.Addr)
	reply, err := s.client.Send(ctx, compact.Bytes())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("host request failed", "type", req.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, rpc.ErrorResponse("", err.Error()))
		return http.StatusInternalServerError, req.Type, err
	}

	if reply.Response.IsError() {
		span.SetStatus(codes.Error, reply.Response.Message)
		writeRaw(w, http.StatusInternalServerError, reply.Raw)
		return http.StatusInternalServerError, req.Type, errors.New(reply.Response.Message)
	}
	writeRaw(w, http.StatusOK, reply.Raw)
	return http.StatusOK, req.Type, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok", "host": s.client.Addr, "host_reachable": true}
	if err := s.client.Ping(r.Context()); err != nil {
		out["host_reachable"] = false
		out["host_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTools serves the catalog; ?format=openai yields function-call tools.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "openai" {
		writeJSON(w, http.StatusOK, s.catalog.ToLLMTools())
		return
	}
	writeJSON(w, http.StatusOK, s.catalog.All())
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("relay listening", "addr", ln.Addr().String(), "host", s.client.Addr)
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
