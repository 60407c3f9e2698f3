package supervisor

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/execabs"
)

// Deps contains this package runtime dependencies.
type Deps interface {
	// StartCmd invokes cmd.Start.
	StartCmd(cmd *execabs.Cmd) error

	// WaitCmd invokes cmd.Wait.
	WaitCmd(cmd *execabs.Cmd) error

	// SignalProcess sends a signal to the command's process.
	SignalProcess(cmd *execabs.Cmd, sig os.Signal) error

	// KillProcess kills the command's process.
	KillProcess(cmd *execabs.Cmd) error
}

// DepsStdlib implements [Deps] using the standard library.
type DepsStdlib struct{}

var _ Deps = DepsStdlib{}

// StartCmd implements Deps.
func (DepsStdlib) StartCmd(cmd *execabs.Cmd) error {
	return cmd.Start()
}

// WaitCmd implements Deps.
func (DepsStdlib) WaitCmd(cmd *execabs.Cmd) error {
	return cmd.Wait()
}

// SignalProcess implements Deps.
func (DepsStdlib) SignalProcess(cmd *execabs.Cmd, sig os.Signal) error {
	return cmd.Process.Signal(sig)
}

// KillProcess implements Deps.
func (DepsStdlib) KillProcess(cmd *execabs.Cmd) error {
	return cmd.Process.Kill()
}

// terminateGrace bounds how long best-effort termination awaits the
// graceful signal before using brute force.
const terminateGrace = 300 * time.Millisecond

// Proc is a running role process owned by the supervisor. The
// supervisor exclusively owns the handle for the duration of a run.
type Proc struct {
	// name is the role name, used in reports.
	name string

	// cmd is the underlying command.
	cmd *execabs.Cmd

	// deps contains the dependencies.
	deps Deps

	// exited is closed once the process has been reaped.
	exited chan struct{}

	// waitErr is the cmd.Wait result, valid after exited is closed.
	waitErr error

	// stopOnce ensures that stopping is idempotent.
	stopOnce *sync.Once
}

// Name returns the role name of the process.
func (p *Proc) Name() string {
	return p.name
}

// AwaitExit blocks until the process exits on its own or the context
// is canceled. On natural exit it returns the process exit code.
func (p *Proc) AwaitExit(ctx context.Context) (int, error) {
	select {
	case <-p.exited:
		return p.exitCode(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stop sends the graceful stop signal to the process and awaits its
// exit for at most the given grace window, after which it escalates
// to a forceful termination. The returned boolean tells the caller
// whether we needed to escalate. Stop is idempotent and a no-op when
// the process has already been stopped.
func (p *Proc) Stop(sig os.Signal, grace time.Duration) (code int, escalated bool) {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			// already gone, nothing to signal
			return
		default:
		}
		_ = p.deps.SignalProcess(p.cmd, sig)
		select {
		case <-p.exited:
		case <-time.After(grace):
			escalated = true
			_ = p.deps.KillProcess(p.cmd)
			<-p.exited
		}
	})
	<-p.exited
	code = p.exitCode()
	return
}

// Terminate performs the best-effort termination used by the abort
// and interrupt paths: SIGTERM, a short wait, then brute force. Safe
// to call at any time, including after Stop.
func (p *Proc) Terminate() {
	p.Stop(syscall.SIGTERM, terminateGrace)
}

// exitCode derives the exit code once exited has been closed. A
// negative value means the process was terminated by a signal or
// that its status could not be collected.
func (p *Proc) exitCode() int {
	if state := p.cmd.ProcessState; state != nil {
		return state.ExitCode()
	}
	var exitErr *execabs.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if p.waitErr != nil {
		return -1
	}
	return 0
}
