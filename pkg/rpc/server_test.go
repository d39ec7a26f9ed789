package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/hostbridge/pkg/framing"
	"github.com/tiancaiamao/hostbridge/pkg/logger"
)

// serialScheduler runs every command on one worker goroutine, standing in
// for the host loop.
type serialScheduler struct {
	d      *Dispatcher
	mu     sync.Mutex
	closed bool
	queue  chan func()
}

func newSerialScheduler(t *testing.T, d *Dispatcher) *serialScheduler {
	s := &serialScheduler{d: d, queue: make(chan func(), 64)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fn := range s.queue {
			fn()
		}
	}()
	t.Cleanup(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-done
	})
	return s
}

func (s *serialScheduler) Schedule(cmd Command, onComplete func(Response)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue <- func() { onComplete(s.d.Dispatch(context.Background(), cmd)) }
}

func startTestServer(t *testing.T, framer framing.Framer) *Server {
	t.Helper()
	d := newTestDispatcher(nil)
	srv := NewServer(ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		Framer:        framer,
		AcceptTimeout: 50 * time.Millisecond,
	}, newSerialScheduler(t, d), logger.Discard())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dial(t *testing.T, srv *Server) (net.Conn, *framing.Channel) {
	t.Helper()
	c, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	c.SetDeadline(time.Now().Add(5 * time.Second))
	return c, framing.NewChannel(c, srv.Config().Framer)
}

func roundTrip(t *testing.T, ch *framing.Channel, cmd Command) Response {
	t.Helper()
	require.NoError(t, ch.Send(cmd))
	var resp Response
	require.NoError(t, ch.ReceiveJSON(&resp))
	return resp
}

func TestServerRoundTrip(t *testing.T) {
	srv := startTestServer(t, nil)
	assert.Equal(t, Running, srv.State())

	_, ch := dial(t, srv)

	resp := roundTrip(t, ch, Command{Type: "echo", Params: Params{"name": "Cube"}})
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, map[string]any{"name": "Cube"}, resp.Result)

	resp = roundTrip(t, ch, Command{Type: "lookup", Params: Params{"object_name": "DoesNotExist"}})
	assert.Equal(t, ErrorResponse("", "Object not found: DoesNotExist"), resp)

	resp = roundTrip(t, ch, Command{ID: "abc", Type: "nope"})
	assert.Equal(t, ErrorResponse("abc", "Unknown command type: nope"), resp)
}

func TestServerPipelinedFramesKeepOrder(t *testing.T) {
	srv := startTestServer(t, nil)
	c, ch := dial(t, srv)

	// Two commands in one write, no delimiter.
	_, err := c.Write([]byte(`{"id":"1","type":"echo","params":{"n":1}}{"id":"2","type":"echo","params":{"n":2}}`))
	require.NoError(t, err)

	for _, want := range []string{"1", "2"} {
		var resp Response
		require.NoError(t, ch.ReceiveJSON(&resp))
		assert.Equal(t, want, resp.ID)
	}
}

func TestServerSurvivesMalformedFrame(t *testing.T) {
	srv := startTestServer(t, nil)
	c, ch := dial(t, srv)

	_, err := c.Write([]byte(`{this is not json}`))
	require.NoError(t, err)

	resp := roundTrip(t, ch, Command{Type: "echo"})
	assert.Equal(t, StatusSuccess, resp.Status)
}

func TestServerFragmentedWrites(t *testing.T) {
	srv := startTestServer(t, nil)
	c, ch := dial(t, srv)

	payload := []byte(`{"type":"echo","params":{"nested":{"deep":[1,2,3]}}}`)
	for i := 0; i < len(payload); i += 5 {
		end := min(i+5, len(payload))
		_, err := c.Write(payload[i:end])
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	var resp Response
	require.NoError(t, ch.ReceiveJSON(&resp))
	assert.Equal(t, StatusSuccess, resp.Status)
}

func TestServerDepthFraming(t *testing.T) {
	srv := startTestServer(t, framing.Depth{})
	_, ch := dial(t, srv)

	resp := roundTrip(t, ch, Command{Type: "echo", Params: Params{"code": "if x then print('}') end"}})
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, map[string]any{"code": "if x then print('}') end"}, resp.Result)
}

func TestServerIndependentConnections(t *testing.T) {
	srv := startTestServer(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := net.Dial("tcp", srv.Addr().String())
			if !assert.NoError(t, err) {
				return
			}
			defer c.Close()
			c.SetDeadline(time.Now().Add(5 * time.Second))
			ch := framing.NewChannel(c, nil)

			id := string(rune('a' + i))
			if !assert.NoError(t, ch.Send(Command{ID: id, Type: "echo"})) {
				return
			}
			var resp Response
			if assert.NoError(t, ch.ReceiveJSON(&resp)) {
				assert.Equal(t, id, resp.ID)
			}
		}(i)
	}
	wg.Wait()
}

func TestServerStartStopIdempotent(t *testing.T) {
	d := newTestDispatcher(nil)
	srv := NewServer(ServerConfig{Host: "127.0.0.1", AcceptTimeout: 50 * time.Millisecond},
		newSerialScheduler(t, d), logger.Discard())

	assert.Equal(t, Stopped, srv.State())
	assert.NoError(t, srv.Stop(), "stopping a stopped server is a no-op")
	assert.Equal(t, Stopped, srv.State())

	require.NoError(t, srv.Start())
	addr := srv.Addr().String()
	require.NoError(t, srv.Start(), "starting a running server is a no-op")
	assert.Equal(t, addr, srv.Addr().String())
	assert.Equal(t, Running, srv.State())

	require.NoError(t, srv.Stop())
	assert.Equal(t, Stopped, srv.State())
	assert.Nil(t, srv.Addr())
	assert.NoError(t, srv.Stop())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed after stop")
}

func TestServerStopClosesConnections(t *testing.T) {
	d := newTestDispatcher(nil)
	srv := NewServer(ServerConfig{Host: "127.0.0.1", AcceptTimeout: 50 * time.Millisecond},
		newSerialScheduler(t, d), logger.Discard())
	require.NoError(t, srv.Start())

	c, ch := dial(t, srv)
	roundTrip(t, ch, Command{Type: "echo"})
	assert.Equal(t, 1, srv.ConnCount())

	require.NoError(t, srv.Stop())

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := c.Read(buf)
	assert.Error(t, err, "live connections are closed on stop")
}

func TestServerSingleInstancePerProcess(t *testing.T) {
	first := startTestServer(t, nil)

	d := newTestDispatcher(nil)
	second := NewServer(ServerConfig{Host: "127.0.0.1"}, newSerialScheduler(t, d), logger.Discard())

	err := second.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, Stopped, second.State())
	assert.Nil(t, second.Addr())
	assert.Same(t, first, Active())

	require.NoError(t, first.Stop())
	require.NoError(t, second.Start(), "second instance may start once the first stopped")
	assert.Same(t, second, Active())
	require.NoError(t, second.Stop())
	assert.Nil(t, Active())
}

func TestServerBindFailureLeavesStopped(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	d := newTestDispatcher(nil)
	srv := NewServer(ServerConfig{Host: "127.0.0.1", Port: port}, newSerialScheduler(t, d), logger.Discard())

	err = srv.Start()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAlreadyRunning))
	assert.Equal(t, Stopped, srv.State())
	assert.Nil(t, Active(), "failed start must release the process slot")

	// Retrying on a free port works.
	occupied.Close()
	srv2 := NewServer(ServerConfig{Host: "127.0.0.1"}, newSerialScheduler(t, d), logger.Discard())
	require.NoError(t, srv2.Start())
	require.NoError(t, srv2.Stop())
}

func TestDefaultServerLifecycle(t *testing.T) {
	d := newTestDispatcher(nil)
	sched := newSerialScheduler(t, d)
	cfg := ServerConfig{Host: "127.0.0.1", AcceptTimeout: 50 * time.Millisecond}

	assert.NoError(t, StopDefault())
	assert.Nil(t, Default())

	srv, err := StartDefault(cfg, sched, logger.Discard())
	require.NoError(t, err)
	again, err := StartDefault(cfg, sched, logger.Discard())
	require.NoError(t, err)
	assert.Same(t, srv, again)
	assert.Same(t, srv, Default())

	require.NoError(t, StopDefault())
	assert.Nil(t, Default())
	assert.Equal(t, Stopped, srv.State())
}

func TestServerRepliesAfterClientGoneDoNotCrash(t *testing.T) {
	srv := startTestServer(t, nil)
	c, _ := dial(t, srv)

	data, err := json.Marshal(Command{Type: "echo"})
	require.NoError(t, err)
	_, err = c.Write(data)
	require.NoError(t, err)
	c.Close()

	// The server keeps serving new clients.
	_, ch := dial(t, srv)
	resp := roundTrip(t, ch, Command{Type: "echo"})
	assert.Equal(t, StatusSuccess, resp.Status)
}

// stuckListener's Accept ignores Close and only returns once released.
type stuckListener struct {
	release chan struct{}
	closed  atomic.Bool
}

func (l *stuckListener) Accept() (net.Conn, error) {
	<-l.release
	return nil, net.ErrClosed
}

func (l *stuckListener) Close() error {
	l.closed.Store(true)
	return nil
}

func (l *stuckListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}
}

func TestServerStopJoinTimeout(t *testing.T) {
	ln := &stuckListener{release: make(chan struct{})}
	srv := NewServer(ServerConfig{
		Host:        "127.0.0.1",
		JoinTimeout: 50 * time.Millisecond,
	}, newSerialScheduler(t, newTestDispatcher(nil)), logger.Discard())
	srv.listen = func(context.Context, string, string) (net.Listener, error) {
		return ln, nil
	}

	require.NoError(t, srv.Start())
	acceptDone := srv.done

	start := time.Now()
	err := srv.Stop()
	assert.ErrorIs(t, err, ErrJoinTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, ln.closed.Load())
	assert.Equal(t, Stopped, srv.State())
	assert.Nil(t, srv.Addr())

	// The process slot is released even though the loop is still stuck.
	other := startTestServer(t, nil)
	assert.Equal(t, Running, other.State())
	require.NoError(t, other.Stop())

	close(ln.release)
	select {
	case <-acceptDone:
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not exit once released")
	}
}
