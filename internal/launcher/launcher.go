// Package launcher verifies the DaVinci Resolve installation and starts the
// application, either headless as a supervised child process or through the
// platform's regular "open application" mechanism.
package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var ErrNotInstalled = errors.New("DaVinci Resolve not found")

const defaultStopGrace = 10 * time.Second

// Mode selects how Resolve is started.
type Mode int

const (
	ModeInteractive Mode = iota
	ModeHeadless
)

func (m Mode) String() string {
	if m == ModeHeadless {
		return "headless"
	}
	return "interactive"
}

// CheckInstallation reports ErrNotInstalled when appPath does not exist.
func CheckInstallation(appPath string) error {
	if _, err := os.Stat(appPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w at %s", ErrNotInstalled, appPath)
		}
		return fmt.Errorf("cannot inspect %s: %w", appPath, err)
	}
	return nil
}

// Options configures a Launcher.
type Options struct {
	AppPath      string
	BinaryPath   string
	HeadlessArgs []string      // default: -nogui
	OpenCommand  []string      // default: platform specific, see platformOpenCommand
	StopGrace    time.Duration // time between SIGTERM and kill
	Logger       *slog.Logger
}

type Launcher struct {
	opts Options
}

func New(opts Options) *Launcher {
	if opts.HeadlessArgs == nil {
		opts.HeadlessArgs = []string{"-nogui"}
	}
	if opts.OpenCommand == nil {
		opts.OpenCommand = platformOpenCommand()
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	return &Launcher{opts: opts}
}

// platformOpenCommand returns the generic application opener. On platforms
// without one the binary is started detached instead.
func platformOpenCommand() []string {
	if runtime.GOOS == "darwin" {
		return []string{"open"}
	}
	return []string{}
}

// Start launches Resolve. In headless mode the returned Process owns the
// child and Stop terminates it; in interactive mode no handle is retained
// and Stop is a no-op.
func (l *Launcher) Start(mode Mode) (*Process, error) {
	if mode == ModeHeadless {
		return l.startHeadless()
	}
	return &Process{}, l.startInteractive()
}

func (l *Launcher) startHeadless() (*Process, error) {
	cmd := exec.Command(l.opts.BinaryPath, l.opts.HeadlessArgs...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.opts.BinaryPath, err)
	}

	p := &Process{
		cmd:    cmd,
		done:   make(chan struct{}),
		grace:  l.opts.StopGrace,
		logger: l.opts.Logger,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	l.log("started resolve headless", "pid", cmd.Process.Pid, "args", l.opts.HeadlessArgs)
	return p, nil
}

func (l *Launcher) startInteractive() error {
	if len(l.opts.OpenCommand) > 0 {
		args := append(append([]string{}, l.opts.OpenCommand[1:]...), l.opts.AppPath)
		out, err := exec.Command(l.opts.OpenCommand[0], args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w: %s", l.opts.AppPath, err, out)
		}
		l.log("opened resolve", "app", l.opts.AppPath)
		return nil
	}

	cmd := exec.Command(l.opts.BinaryPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.opts.BinaryPath, err)
	}
	l.log("started resolve detached", "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

func (l *Launcher) log(msg string, args ...any) {
	if l.opts.Logger != nil {
		l.opts.Logger.Info(msg, args...)
	}
}

// Process is a handle to a headless Resolve child. The zero value (and nil)
// represent an unmanaged interactive instance.
type Process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	grace   time.Duration
	logger  *slog.Logger

	stopOnce sync.Once
}

// Managed reports whether Stop will terminate a child process.
func (p *Process) Managed() bool {
	return p != nil && p.cmd != nil
}

// Pid returns the child pid, or 0 when unmanaged.
func (p *Process) Pid() int {
	if !p.Managed() {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited reports whether the child has exited.
func (p *Process) Exited() bool {
	if !p.Managed() {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop asks the child to terminate and kills it if it has not exited after
// the grace period. It is safe to call more than once and from a signal
// handler goroutine. Stop never waits longer than the grace period plus the
// kill itself.
func (p *Process) Stop() {
	if !p.Managed() {
		return
	}
	p.stopOnce.Do(func() {
		if p.Exited() {
			return
		}
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = p.cmd.Process.Kill()
		}

		select {
		case <-p.done:
		case <-time.After(p.grace):
			if p.logger != nil {
				p.logger.Warn("resolve did not exit after SIGTERM, killing", "pid", p.cmd.Process.Pid, "grace", p.grace)
			}
			_ = p.cmd.Process.Kill()
			<-p.done
		}

		if p.logger != nil {
			p.logger.Info("resolve stopped", "pid", p.cmd.Process.Pid)
		}
	})
}
