package hostapp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/hostbridge/pkg/assets"
	"github.com/tiancaiamao/hostbridge/pkg/config"
	"github.com/tiancaiamao/hostbridge/pkg/framing"
	"github.com/tiancaiamao/hostbridge/pkg/logger"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/tools"
)

func testConfig() config.HostConfig {
	cfg := config.DefaultHostConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.TickMillis = 1
	return cfg
}

// runApp starts the host loop and command server for the test's lifetime.
func runApp(t *testing.T, cfg config.HostConfig) (*App, string) {
	t.Helper()
	app, err := New(Options{Config: cfg, Logger: logger.Discard(), GenerationTicks: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, rpc.Stopped, app.ServerState())
	})

	srv, err := app.StartServer()
	require.NoError(t, err)
	return app, srv.Addr().String()
}

func send(t *testing.T, addr string, cmd rpc.Command) rpc.Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	ch := framing.NewChannel(conn, framing.Brace{})
	require.NoError(t, ch.Send(cmd))
	var resp rpc.Response
	require.NoError(t, ch.ReceiveJSON(&resp))
	return resp
}

func TestSceneCommandsOverTCP(t *testing.T) {
	_, addr := runApp(t, testConfig())

	resp := send(t, addr, rpc.Command{Type: rpc.CommandGetSceneInfo, Params: rpc.Params{}})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	info := resp.Result.(map[string]any)
	assert.Equal(t, "Scene", info["name"])
	assert.EqualValues(t, 3, info["object_count"])

	resp = send(t, addr, rpc.Command{
		Type:   rpc.CommandGetObjectInfo,
		Params: rpc.Params{"object_name": "DoesNotExist"},
	})
	assert.Equal(t, rpc.Response{Status: rpc.StatusError, Message: "Object not found: DoesNotExist"}, resp)
}

func TestFlagToggleVisibleOnNextCall(t *testing.T) {
	app, addr := runApp(t, testConfig())
	cmd := rpc.Command{Type: rpc.CommandGetHyper3DStatus}
	gated := rpc.Command{Type: rpc.CommandPollRodinJobStatus, Params: rpc.Params{"job_id": "x"}}

	resp := send(t, addr, cmd)
	assert.Equal(t, map[string]any{"enabled": false}, resp.Result)
	resp = send(t, addr, gated)
	assert.Equal(t, "Unknown command type: poll_rodin_job_status", resp.Message)

	require.NoError(t, app.Settings().SetFlag(rpc.FlagHyper3D, true))

	resp = send(t, addr, cmd)
	assert.Equal(t, map[string]any{"enabled": true}, resp.Result)
	resp = send(t, addr, gated)
	assert.Equal(t, "Unknown job: x", resp.Message)
}

func TestHyper3DJobsAdvanceOnTicks(t *testing.T) {
	cfg := testConfig()
	cfg.UseHyper3D = true
	cfg.Hyper3DKey = "test"
	_, addr := runApp(t, cfg)

	resp := send(t, addr, rpc.Command{
		Type:   rpc.CommandGenerateHyper3DViaText,
		Params: rpc.Params{"text_prompt": "a lamp"},
	})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	id := resp.Result.(map[string]any)["job_id"].(string)

	require.Eventually(t, func() bool {
		resp := send(t, addr, rpc.Command{Type: rpc.CommandPollRodinJobStatus, Params: rpc.Params{"job_id": id}})
		return resp.Result.(map[string]any)["status"] == string(assets.JobCompleted)
	}, 5*time.Second, 10*time.Millisecond)

	resp = send(t, addr, rpc.Command{Type: rpc.CommandImportGeneratedAsset, Params: rpc.Params{"name": "Lamp"}})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
}

func TestServerOperators(t *testing.T) {
	app, addr := runApp(t, testConfig())
	assert.Equal(t, rpc.Running, app.ServerState())

	again, err := app.StartServer()
	require.NoError(t, err)
	assert.Equal(t, addr, again.Addr().String())

	require.NoError(t, app.StopServer())
	assert.Equal(t, rpc.Stopped, app.ServerState())
	require.NoError(t, app.StopServer())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)

	srv, err := app.StartServer()
	require.NoError(t, err)
	resp := send(t, srv.Addr().String(), rpc.Command{Type: rpc.CommandGetSceneInfo})
	assert.Equal(t, rpc.StatusSuccess, resp.Status)
}

func TestDoRunsOnLoop(t *testing.T) {
	app, _ := runApp(t, testConfig())

	var names []string
	err := app.Do(context.Background(), func(ctx context.Context) error {
		app.Scene().Clear()
		names = app.Scene().Names()
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSettings(t *testing.T) {
	s := NewSettings(testConfig())

	assert.False(t, s.Enabled(rpc.FlagPolyHaven))
	require.NoError(t, s.SetFlag(rpc.FlagPolyHaven, true))
	assert.True(t, s.Enabled(rpc.FlagPolyHaven))
	assert.Error(t, s.SetFlag("use_teleport", true))
	assert.Equal(t, []string{rpc.FlagHyper3D, rpc.FlagPolyHaven}, s.FlagNames())

	assert.Error(t, s.SetPort(70000))
	require.NoError(t, s.SetPort(9000))
	assert.Equal(t, 9000, s.Port())

	s.SetHyper3DKey("k")
	assert.Equal(t, "k", s.Hyper3DKey())
}

func TestNewRejectsUnknownFraming(t *testing.T) {
	cfg := testConfig()
	cfg.Framing = "length"
	_, err := New(Options{Config: cfg})
	assert.Error(t, err)
}

func TestCatalogMatchesHostCommands(t *testing.T) {
	app, err := New(Options{Config: testConfig(), Logger: logger.Discard()})
	require.NoError(t, err)
	reg := app.Dispatcher().Registry()
	catalog := tools.Catalog()

	assert.Equal(t, catalog.Names(), reg.Available(rpc.AllEnabled))
	for _, tool := range catalog.All() {
		assert.Equal(t, tool.Gate, reg.Gate(tool.Name), tool.Name)
	}
}
