// Package hostapp is the simulated host application: a single-threaded
// loop that owns a scene, the host settings and the command server
// operators.
package hostapp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tiancaiamao/hostbridge/pkg/assets"
	"github.com/tiancaiamao/hostbridge/pkg/config"
	"github.com/tiancaiamao/hostbridge/pkg/framing"
	"github.com/tiancaiamao/hostbridge/pkg/hostexec"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/scene"
	"github.com/tiancaiamao/hostbridge/pkg/script"
)

// Options configures an App.
type Options struct {
	Config     config.HostConfig
	Logger     *slog.Logger
	HTTPClient *http.Client // Poly Haven requests
	Recorder   rpc.Recorder
	Tracer     trace.Tracer
	Scene      *scene.Scene // nil starts from the default scene

	// GenerationTicks overrides how long Hyper3D jobs take.
	GenerationTicks int
}

// App wires the host together. Everything that touches the scene runs on
// the loop.
type App struct {
	cfg        config.HostConfig
	log        *slog.Logger
	framer     framing.Framer
	loop       *hostexec.Loop
	scene      *scene.Scene
	settings   *Settings
	generator  *assets.Generator
	dispatcher *rpc.Dispatcher
	executor   *hostexec.Executor
}

// New builds an app and registers every host command.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	framer, err := framing.ByName(cfg.Framing)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	sc := opts.Scene
	if sc == nil {
		sc = scene.NewDefault()
	}

	settings := NewSettings(cfg)
	loop := hostexec.NewLoop(
		hostexec.WithTickInterval(time.Duration(cfg.TickMillis)*time.Millisecond),
		hostexec.WithLoopLogger(log.With("component", "loop")),
	)

	gen := assets.NewGenerator(settings.Hyper3DKey)
	if opts.GenerationTicks > 0 {
		gen.SetGenerationTicks(opts.GenerationTicks)
	}
	loop.OnTick(gen.Advance)

	reg := rpc.NewRegistry()
	scene.Register(reg, sc)
	script.Register(reg, script.New(sc, script.WithInstructionLimit(cfg.ScriptLimit)))
	assets.RegisterStatus(reg, settings)
	assets.RegisterPolyHaven(reg, assets.NewPolyHaven(cfg.PolyHavenURL, opts.HTTPClient), sc)
	assets.RegisterHyper3D(reg, gen, sc)

	dopts := []rpc.DispatcherOption{rpc.WithLogger(log)}
	if opts.Recorder != nil {
		dopts = append(dopts, rpc.WithRecorder(opts.Recorder))
	}
	if opts.Tracer != nil {
		dopts = append(dopts, rpc.WithTracer(opts.Tracer))
	}
	d := rpc.NewDispatcher(reg, settings, dopts...)

	return &App{
		cfg:        cfg,
		log:        log.With("component", "host"),
		framer:     framer,
		loop:       loop,
		scene:      sc,
		settings:   settings,
		generator:  gen,
		dispatcher: d,
		executor:   hostexec.NewExecutor(loop, d, log),
	}, nil
}

func (a *App) Loop() *hostexec.Loop         { return a.loop }
func (a *App) Executor() *hostexec.Executor { return a.executor }
func (a *App) Dispatcher() *rpc.Dispatcher  { return a.dispatcher }
func (a *App) Settings() *Settings          { return a.settings }
func (a *App) Generator() *assets.Generator { return a.generator }
func (a *App) Framer() framing.Framer       { return a.framer }
func (a *App) Scene() *scene.Scene          { return a.scene }
func (a *App) Logger() *slog.Logger         { return a.log }
func (a *App) Config() config.HostConfig    { return a.cfg }

// Available lists the command types dispatchable right now.
func (a *App) Available() []string {
	return a.dispatcher.Registry().Available(a.settings)
}

// Do runs fn on the host loop and waits for it.
func (a *App) Do(ctx context.Context, fn func(context.Context) error) error {
	return a.executor.Do(ctx, fn)
}

// Run drives the host loop until ctx ends. With AutoStart the command
// server is started first. The server is stopped when Run returns.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.AutoStart {
		if _, err := a.StartServer(); err != nil {
			a.log.Error("command server did not start", "error", err)
		}
	}
	defer func() {
		if err := a.StopServer(); err != nil {
			a.log.Warn("command server stop", "error", err)
		}
	}()

	a.log.Info("host loop running", "tick", time.Duration(a.cfg.TickMillis)*time.Millisecond)
	err := a.loop.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// StartServer is the "start server" operator. It starts the process-wide
// command server on the configured address and port. When a server is
// already running it is returned unchanged; port changes apply after a
// stop.
func (a *App) StartServer() (*rpc.Server, error) {
	srv, err := rpc.StartDefault(rpc.ServerConfig{
		Host:   a.settings.Address(),
		Port:   a.settings.Port(),
		Framer: a.framer,
	}, a.executor, a.log)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// StopServer is the "stop server" operator. It is safe to call when
// nothing is running.
func (a *App) StopServer() error {
	return rpc.StopDefault()
}

// ServerState reports the operator-managed server's state.
func (a *App) ServerState() rpc.State {
	if srv := rpc.Default(); srv != nil {
		return srv.State()
	}
	return rpc.Stopped
}
