// Package script runs user-supplied Lua against the host scene.
//
// Each run gets a fresh interpreter with only the base, string, table and
// math libraries, a `scene` table of host capabilities and a `print` that
// writes to the captured output. File and OS access are not available.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/scene"
)

// DefaultInstructionLimit bounds how many VM instructions a script may run.
const DefaultInstructionLimit = 50_000_000

// hookInterval is how often, in instructions, the limit and context are checked.
const hookInterval = 10_000

// Result is returned by a successful run.
type Result struct {
	Executed bool   `json:"executed"`
	Output   string `json:"output"`
}

// Runner executes scripts against one scene. It must be used on the
// goroutine that owns the scene.
type Runner struct {
	scene *scene.Scene
	limit int
}

// Option configures a Runner.
type Option func(*Runner)

// WithInstructionLimit overrides DefaultInstructionLimit. Zero disables it.
func WithInstructionLimit(n int) Option {
	return func(r *Runner) { r.limit = n }
}

// New creates a runner bound to s.
func New(s *scene.Scene, opts ...Option) *Runner {
	r := &Runner{scene: s, limit: DefaultInstructionLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes code. Script errors, including exceeding the instruction
// limit or ctx ending, are returned as "Script execution error: ...".
func (r *Runner) Run(ctx context.Context, code string) (Result, error) {
	var out strings.Builder
	l := r.newState(ctx, &out)

	if err := lua.LoadString(l, code); err != nil {
		return Result{}, fmt.Errorf("Script execution error: %v", err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return Result{}, fmt.Errorf("Script execution error: %v", err)
	}
	return Result{Executed: true, Output: out.String()}, nil
}

func (r *Runner) newState(ctx context.Context, out *strings.Builder) *lua.State {
	l := lua.NewState()

	for _, lib := range []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
	} {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.Register("print", func(l *lua.State) int {
		n := l.Top()
		for i := 1; i <= n; i++ {
			if i > 1 {
				out.WriteByte('\t')
			}
			out.WriteString(luaString(l, i))
		}
		out.WriteByte('\n')
		return 0
	})

	l.NewTable()
	lua.SetFunctions(l, sceneFunctions(r.scene), 0)
	l.SetGlobal("scene")

	steps := 0
	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		steps += hookInterval
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "script interrupted: %s", err.Error())
		}
		if r.limit > 0 && steps > r.limit {
			lua.Errorf(l, "script exceeded %d instructions", r.limit)
		}
	}, lua.MaskCount, hookInterval)

	return l
}

func luaString(l *lua.State, i int) string {
	switch l.TypeOf(i) {
	case lua.TypeNil, lua.TypeNone:
		return "nil"
	case lua.TypeBoolean:
		if l.ToBoolean(i) {
			return "true"
		}
		return "false"
	case lua.TypeNumber:
		n, _ := l.ToNumber(i)
		return formatNumber(n)
	case lua.TypeString:
		s, _ := l.ToString(i)
		return s
	default:
		return lua.TypeNameOf(l, i)
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%.14g", n)
}

// Register adds execute_code to reg.
func Register(reg *rpc.Registry, r *Runner) {
	reg.Register(rpc.CommandExecuteCode, func(ctx context.Context, p rpc.Params) (any, error) {
		code, err := p.String("code")
		if err != nil {
			return nil, err
		}
		return r.Run(ctx, code)
	})
}
