// Package console is the operator console of the simulated host. It stands
// in for the host's UI panel: start and stop the command server, toggle the
// integrations and inspect the scene.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/tiancaiamao/hostbridge/pkg/hostapp"
	"github.com/tiancaiamao/hostbridge/pkg/metrics"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/scene"
)

const prompt = "hostbridge> "

// ErrQuit is returned by Execute for quit and exit.
var ErrQuit = errors.New("quit")

// Console executes operator commands against an App.
type Console struct {
	app     *hostapp.App
	metrics *metrics.Metrics
	out     io.Writer
}

// New creates a console writing to out. m may be nil.
func New(app *hostapp.App, m *metrics.Metrics, out io.Writer) *Console {
	return &Console{app: app, metrics: m, out: out}
}

var commands = []string{
	"help", "quit", "exit", "start", "stop", "status", "flag", "port", "key",
	"scene", "object", "tools", "metrics", "call",
}

func (c *Console) completer() readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, cmd := range commands {
		switch cmd {
		case "flag":
			var flags []readline.PrefixCompleterInterface
			for _, name := range c.app.Settings().FlagNames() {
				flags = append(flags, readline.PcItem(name,
					readline.PcItem("on"), readline.PcItem("off"), readline.PcItem("toggle")))
			}
			items = append(items, readline.PcItem(cmd, flags...))
		default:
			items = append(items, readline.PcItem(cmd))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until quit, EOF or ctx ends.
func (c *Console) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		HistorySearchFold: true,
		AutoComplete:      c.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		Stdout:            c.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// Execute runs one console line. A leading slash is accepted.
func (c *Console) Execute(ctx context.Context, line string) error {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "help":
		c.showHelp()
	case "quit", "exit":
		return ErrQuit
	case "start":
		srv, err := c.app.StartServer()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "command server running on %s\n", srv.Addr())
	case "stop":
		if err := c.app.StopServer(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "command server stopped")
	case "status":
		c.showStatus()
	case "flag":
		return c.handleFlag(args)
	case "port":
		if len(args) != 1 {
			fmt.Fprintln(c.out, "usage: port <number>")
			return nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		if err := c.app.Settings().SetPort(n); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "port set to %d (applies on next start)\n", n)
	case "key":
		if len(args) != 1 {
			fmt.Fprintln(c.out, "usage: key <hyper3d-api-key>")
			return nil
		}
		c.app.Settings().SetHyper3DKey(args[0])
		fmt.Fprintln(c.out, "hyper3d key updated")
	case "scene":
		return c.showScene(ctx)
	case "object":
		if len(args) != 1 {
			fmt.Fprintln(c.out, "usage: object <name>")
			return nil
		}
		return c.call(ctx, rpc.Command{Type: rpc.CommandGetObjectInfo, Params: rpc.Params{"object_name": args[0]}})
	case "tools":
		for _, name := range c.app.Available() {
			fmt.Fprintln(c.out, name)
		}
	case "metrics":
		c.showMetrics()
	case "call":
		return c.handleCall(ctx, strings.TrimSpace(strings.TrimPrefix(line, "call")))
	default:
		return fmt.Errorf("unknown command: %s (try help)", cmd)
	}
	return nil
}

func (c *Console) showHelp() {
	fmt.Fprint(c.out, `commands:
  start                  start the command server
  stop                   stop the command server
  status                 server state, port and integrations
  flag <name> [on|off|toggle]
  port <number>          port used by the next start
  key <value>            set the Hyper3D API key
  scene                  list scene objects
  object <name>          show one object
  tools                  commands available right now
  metrics                per-command statistics
  call <json>            run {"type":...,"params":...} on the host
  quit
`)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (c *Console) showStatus() {
	s := c.app.Settings()
	addr := fmt.Sprintf("%s:%d", s.Address(), s.Port())
	if srv := rpc.Default(); srv != nil && srv.Addr() != nil {
		addr = srv.Addr().String()
	}
	fmt.Fprintf(c.out, "server: %s (%s)\n", c.app.ServerState(), addr)
	for _, name := range s.FlagNames() {
		fmt.Fprintf(c.out, "%s: %s\n", name, onOff(s.Enabled(name)))
	}
	key := "unset"
	if s.Hyper3DKey() != "" {
		key = "set"
	}
	fmt.Fprintf(c.out, "hyper3d key: %s\n", key)
}

func (c *Console) handleFlag(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(c.out, "usage: flag <name> [on|off|toggle]")
		return nil
	}
	s := c.app.Settings()
	name := args[0]
	mode := "toggle"
	if len(args) == 2 {
		mode = args[1]
	}

	var value bool
	switch mode {
	case "on":
		value = true
	case "off":
		value = false
	case "toggle":
		value = !s.Enabled(name)
	default:
		fmt.Fprintln(c.out, "usage: flag <name> [on|off|toggle]")
		return nil
	}
	if err := s.SetFlag(name, value); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s\n", name, onOff(value))
	return nil
}

func (c *Console) showScene(ctx context.Context) error {
	var objs []scene.ObjectInfo
	var sceneName string
	err := c.app.Do(ctx, func(context.Context) error {
		sc := c.app.Scene()
		sceneName = sc.Name()
		for _, name := range sc.Names() {
			info, err := sc.ObjectInfo(name)
			if err != nil {
				return err
			}
			objs = append(objs, info)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "scene %s: %d objects\n", sceneName, len(objs))
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tLOCATION")
	for _, o := range objs {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", o.Name, o.Type, o.Location)
	}
	return tw.Flush()
}

func (c *Console) showMetrics() {
	if c.metrics == nil {
		fmt.Fprintln(c.out, "metrics disabled")
		return
	}
	cmds := c.metrics.Commands()
	if len(cmds) == 0 {
		fmt.Fprintln(c.out, "no commands yet")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tCALLS\tFAILED\tAVG ms\tMAX ms")
	for _, m := range cmds {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\n", m.Name, m.CallCount, m.FailCount, m.AverageDurationMs, m.MaxDurationMs)
	}
	tw.Flush()
}

func (c *Console) handleCall(ctx context.Context, payload string) error {
	if payload == "" {
		return errors.New("call requires a JSON command")
	}
	var cmd rpc.Command
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if cmd.Type == "" {
		return errors.New("command type is required")
	}
	return c.call(ctx, cmd)
}

func (c *Console) call(ctx context.Context, cmd rpc.Command) error {
	resp, err := c.app.Executor().Call(ctx, cmd)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}
