package main

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/zeromicro/go-zero/core/logx"
)

// Phase is the shell's position in its run lifecycle
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseSidecarRunning
	PhaseCloseRequested
	PhaseDestroyed
	PhaseExitRequested
	PhaseCleaningUp
	PhaseExited
)

var phaseNames = [...]string{
	PhaseStarting:       "starting",
	PhaseSidecarRunning: "sidecar-running",
	PhaseCloseRequested: "close-requested",
	PhaseDestroyed:      "destroyed",
	PhaseExitRequested:  "exit-requested",
	PhaseCleaningUp:     "cleaning-up",
	PhaseExited:         "exited",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// SidecarLauncher starts the sidecar process
type SidecarLauncher interface {
	Launch(ctx context.Context) (*Sidecar, error)
}

// Cleaner runs the port cleanup
type Cleaner interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// App is the application context shared by the startup hook and the event
// handlers. It is built once at startup.
type App struct {
	cfg      Config
	launcher SidecarLauncher
	cleaner  Cleaner
	exit     func(code int)

	phase    atomic.Int32
	launched atomic.Bool
	sidecar  atomic.Pointer[Sidecar]

	// waitReady probes the sidecar after launch; nil disables the probe
	waitReady func(ctx context.Context) error
}

// Option customizes an App
type Option func(*App)

// WithLauncher replaces the sidecar launcher
func WithLauncher(l SidecarLauncher) Option {
	return func(a *App) { a.launcher = l }
}

// WithCleaner replaces the port cleanup
func WithCleaner(c Cleaner) Option {
	return func(a *App) { a.cleaner = c }
}

// WithExit replaces os.Exit as the forced exit
func WithExit(exit func(code int)) Option {
	return func(a *App) { a.exit = exit }
}

// NewApp builds the application context from config
func NewApp(cfg Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		launcher: NewLauncher(cfg),
		exit:     os.Exit,
	}
	if cfg.Sidecar.HealthURL != "" {
		a.waitReady = func(ctx context.Context) error {
			return waitForSidecar(ctx, cfg.Sidecar.HealthURL, cfg.Sidecar.ReadyTimeout)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cleaner == nil {
		sweeper, err := NewSweeper(cfg)
		if err != nil {
			return nil, err
		}
		a.cleaner = sweeper
	}
	return a, nil
}

// Phase returns the current lifecycle phase
func (a *App) Phase() Phase {
	return Phase(a.phase.Load())
}

// setPhase moves to p unless the run has already exited
func (a *App) setPhase(p Phase) {
	for {
		cur := a.phase.Load()
		if Phase(cur) == PhaseExited {
			return
		}
		if a.phase.CompareAndSwap(cur, int32(p)) {
			if Phase(cur) != p {
				logx.Debugf("[shell] Phase %s -> %s", Phase(cur), p)
			}
			return
		}
	}
}

// Sidecar returns the launched sidecar, or nil before a successful launch
func (a *App) Sidecar() *Sidecar {
	return a.sidecar.Load()
}

// Setup is the startup hook. It launches the sidecar on its own goroutine
// and returns immediately; the returned task reports the launch result.
// Only the first call launches anything.
func (a *App) Setup(ctx context.Context) *LaunchTask {
	task := newLaunchTask()
	if !a.launched.CompareAndSwap(false, true) {
		task.finish(nil, ErrSidecarRunning)
		return task
	}

	go func() {
		sc, err := a.launcher.Launch(ctx)
		if err != nil {
			task.finish(nil, err)
			return
		}
		a.sidecar.Store(sc)
		a.setPhase(PhaseSidecarRunning)
		task.finish(sc, nil)

		if a.waitReady != nil {
			if err := a.waitReady(ctx); err != nil {
				logx.Errorf("[sidecar] %v", err)
				return
			}
			logx.Infof("[sidecar] Ready at %s", a.cfg.Sidecar.HealthURL)
		}
	}()
	return task
}

// Start runs Setup and aborts the process if the sidecar cannot be launched
func (a *App) Start(ctx context.Context) *LaunchTask {
	task := a.Setup(ctx)
	go func() {
		if _, err := task.Wait(ctx); err != nil && ctx.Err() == nil {
			logx.Errorf("[shell] Failed to launch sidecar: %v", err)
			a.exit(1)
		}
	}()
	return task
}

// HandleWindowEvent runs cleanup and forces exit when the main window is
// closing or destroyed. Every other event is ignored.
func (a *App) HandleWindowEvent(ctx context.Context, ev WindowEvent) {
	switch e := ev.(type) {
	case CloseRequested:
		if e.Label == MainWindowLabel {
			logx.Info("[shell] Main window close requested, stopping sidecar")
			a.shutdown(ctx, PhaseCloseRequested)
		}
	case Destroyed:
		if e.Label == MainWindowLabel {
			logx.Info("[shell] Main window destroyed, stopping sidecar")
			a.shutdown(ctx, PhaseDestroyed)
		}
	case OtherWindowEvent:
	default:
	}
}

// HandleRunEvent reacts to application lifecycle events. It returns true when
// the exit must be prevented: an exit request defers cleanup to the explicit
// exit path.
func (a *App) HandleRunEvent(ctx context.Context, ev RunEvent) (preventExit bool) {
	switch e := ev.(type) {
	case ExitRequested:
		logx.Infof("[shell] Exit requested by %s, deferring to window shutdown", e.Source)
		a.setPhase(PhaseExitRequested)
		return true
	case Exit:
		logx.Info("[shell] Exiting, sweeping sidecar port")
		a.cleanup(ctx)
		a.setPhase(PhaseExited)
	case OtherRunEvent:
	default:
	}
	return false
}

// shutdown runs the cleanup then forces the process to exit with code 0
func (a *App) shutdown(ctx context.Context, reason Phase) {
	a.setPhase(reason)
	a.cleanup(ctx)
	a.setPhase(PhaseExited)
	a.exit(0)
}

// cleanup runs the port sweep. Failures are already logged by the cleaner.
func (a *App) cleanup(ctx context.Context) {
	a.setPhase(PhaseCleaningUp)
	_, _ = a.cleaner.Sweep(ctx)
}
