// Package relay is the HTTP front end that forwards tool calls to the host's
// command server and returns its response.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/tiancaiamao/hostbridge/pkg/framing"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
)

// DefaultTimeout bounds one relay round trip.
const DefaultTimeout = 20 * time.Second

// Messages returned to callers for transport failures.
const (
	MsgNoResponse = "No response from host"
	MsgRefused    = "Connection to host refused. Is the command server running?"
	MsgTimeout    = "Timed out waiting for host response"
)

// TransportError is a failure talking to the command server. Message is
// what the caller sees.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string { return e.Message }

func (e *TransportError) Unwrap() error { return e.Err }

// IsRefused reports whether err means nothing was listening.
func IsRefused(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Message == MsgRefused
}

func transportError(err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return &TransportError{Message: MsgRefused, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return &TransportError{Message: MsgTimeout, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, framing.ErrIncompleteFrame):
		return &TransportError{Message: MsgNoResponse, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransportError{Message: MsgTimeout, Err: err}
	}
	return &TransportError{Message: err.Error(), Err: err}
}

// Reply is one response frame from the host.
type Reply struct {
	Raw      json.RawMessage
	Response rpc.Response
}

// HostClient talks to the command server, one connection per request.
type HostClient struct {
	Addr    string
	Framer  framing.Framer
	Timeout time.Duration
	Log     *slog.Logger

	dialer net.Dialer
}

// NewHostClient creates a client for the command server at addr.
func NewHostClient(addr string, framer framing.Framer, log *slog.Logger) *HostClient {
	if framer == nil {
		framer = framing.Brace{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HostClient{
		Addr:    addr,
		Framer:  framer,
		Timeout: DefaultTimeout,
		Log:     log.With("component", "hostclient"),
	}
}

// Send writes body, a single JSON command, and waits for the first
// well-formed response frame. Failures are *TransportError.
func (c *HostClient) Send(ctx context.Context, body []byte) (*Reply, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, transportError(err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, transportError(err)
	}
	// Unblock reads if the caller goes away before the deadline.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	ch := framing.NewChannel(conn, c.Framer)
	if err := ch.SendRaw(body); err != nil {
		return nil, transportError(err)
	}

	for {
		frame, err := ch.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil, transportError(ctx.Err())
			}
			return nil, transportError(err)
		}
		var resp rpc.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			c.Log.Warn("discarding malformed frame from host", "error", err, "bytes", len(frame))
			continue
		}
		return &Reply{Raw: json.RawMessage(frame), Response: resp}, nil
	}
}

// Call encodes cmd and sends it.
func (c *HostClient) Call(ctx context.Context, cmd rpc.Command) (*Reply, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, body)
}

// Ping reports whether the command server accepts connections.
func (c *HostClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return transportError(err)
	}
	return conn.Close()
}
