package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/hostbridge/pkg/logger"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/scene"
)

func TestRunCapturesPrint(t *testing.T) {
	r := New(scene.NewDefault())

	res, err := r.Run(context.Background(), `print("hello", 1, 2.5, true, nil)`)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, "hello\t1\t2.5\ttrue\tnil\n", res.Output)
}

func TestRunMutatesScene(t *testing.T) {
	s := scene.NewDefault()
	r := New(s)

	code := `
scene.remove("Cube")
local name = scene.add("uv_sphere", "Ball", 1, 2, 3)
scene.set_scale(name, 2, 2, 2)
local obj = scene.get(name)
print(obj.name, obj.type, obj.location[3], obj.vertices)
print(#scene.objects())
`
	res, err := r.Run(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "Ball\tMESH\t3\t482\n3\n", res.Output)

	ball, ok := s.Get("Ball")
	require.True(t, ok)
	assert.Equal(t, scene.Vector{1, 2, 3}, ball.Location)
	assert.Equal(t, scene.Vector{2, 2, 2}, ball.Scale)
	_, ok = s.Get("Cube")
	assert.False(t, ok)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"syntax", `this is not lua`, "Script execution error"},
		{"runtime", `error("kaboom")`, "kaboom"},
		{"missing object", `scene.remove("Nope")`, "Object not found: Nope"},
		{"no file access", `dofile("/etc/passwd")`, "Script execution error"},
		{"no os library", `os.exit(1)`, "Script execution error"},
		{"bad primitive", `scene.add("teapot")`, "unknown primitive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(scene.NewDefault()).Run(context.Background(), tt.code)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunInstructionLimit(t *testing.T) {
	r := New(scene.New("Empty"), WithInstructionLimit(100_000))

	_, err := r.Run(context.Background(), `while true do end`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
}

func TestRunHonoursContext(t *testing.T) {
	r := New(scene.New("Empty"), WithInstructionLimit(0))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, `while true do end`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted")
}

func TestExecuteCodeCommand(t *testing.T) {
	reg := rpc.NewRegistry()
	Register(reg, New(scene.NewDefault()))
	d := rpc.NewDispatcher(reg, nil, rpc.WithLogger(logger.Discard()))

	resp := d.Dispatch(context.Background(), rpc.Command{
		Type:   rpc.CommandExecuteCode,
		Params: rpc.Params{"code": `print(scene.name())`},
	})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, Result{Executed: true, Output: "Scene\n"}, resp.Result)

	resp = d.Dispatch(context.Background(), rpc.Command{
		Type:   rpc.CommandExecuteCode,
		Params: rpc.Params{"code": `error("bad")`},
	})
	assert.Equal(t, rpc.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "Script execution error")
}
