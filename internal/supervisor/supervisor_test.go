package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Weiennn/cs3103-assignment4/internal/model"
	"github.com/Weiennn/cs3103-assignment4/internal/scenario"
	"github.com/Weiennn/cs3103-assignment4/internal/shellx"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/execabs"
)

// fakeShellLib resolves role commands without consulting the PATH.
type fakeShellLib struct{}

func (fakeShellLib) CmdOutput(c *execabs.Cmd) ([]byte, error) {
	return nil, nil
}

func (fakeShellLib) LookPath(file string) (string, error) {
	return "/fake/" + file, nil
}

// withFakeShell installs the fake shell library for the duration of
// the test, so startRole resolves "python3" deterministically.
func withFakeShell(t *testing.T) {
	t.Helper()
	saved := shellx.Library
	shellx.Library = fakeShellLib{}
	t.Cleanup(func() {
		shellx.Library = saved
	})
}

// fakeDeps implements [Deps] with scriptable process behavior. Each
// process is keyed by its script name (e.g. "receiver.py").
type fakeDeps struct {
	mu sync.Mutex

	// events records what happened, in order.
	events []string

	// startFailures makes StartCmd fail for the given key.
	startFailures map[string]error

	// waiters delivers the WaitCmd result for each key.
	waiters map[string]chan error

	// exitOnSignal makes SignalProcess behave like the process
	// exiting in response to the signal.
	exitOnSignal map[string]bool
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{
		startFailures: make(map[string]error),
		waiters:       make(map[string]chan error),
		exitOnSignal:  make(map[string]bool),
	}
}

func key(cmd *execabs.Cmd) string {
	if len(cmd.Args) > 1 {
		return cmd.Args[1]
	}
	return cmd.Args[0]
}

func (fd *fakeDeps) record(event string) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.events = append(fd.events, event)
}

func (fd *fakeDeps) waiter(k string) chan error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.waiters[k] == nil {
		fd.waiters[k] = make(chan error, 1)
	}
	return fd.waiters[k]
}

// exitNow makes the process identified by key exit with the given error.
func (fd *fakeDeps) exitNow(k string, err error) {
	select {
	case fd.waiter(k) <- err:
	default:
	}
}

func (fd *fakeDeps) StartCmd(cmd *execabs.Cmd) error {
	k := key(cmd)
	fd.record("start " + k)
	fd.mu.Lock()
	err := fd.startFailures[k]
	fd.mu.Unlock()
	return err
}

func (fd *fakeDeps) WaitCmd(cmd *execabs.Cmd) error {
	return <-fd.waiter(key(cmd))
}

func (fd *fakeDeps) SignalProcess(cmd *execabs.Cmd, sig os.Signal) error {
	k := key(cmd)
	fd.record(fmt.Sprintf("signal %s %s", k, sig))
	fd.mu.Lock()
	exit := fd.exitOnSignal[k]
	fd.mu.Unlock()
	if exit {
		fd.exitNow(k, nil)
	}
	return nil
}

func (fd *fakeDeps) KillProcess(cmd *execabs.Cmd) error {
	k := key(cmd)
	fd.record("kill " + k)
	fd.exitNow(k, nil)
	return nil
}

func (fd *fakeDeps) indexOf(event string) int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	for idx, entry := range fd.events {
		if entry == event {
			return idx
		}
	}
	return -1
}

func mustResolve(t *testing.T, id string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Resolve(id)
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func newTestSupervisor(fd *fakeDeps, onUpdate func(RunUpdate)) *Supervisor {
	return New(&Config{
		Logger:    model.DiscardLogger,
		Deps:      fd,
		OnUpdate:  onUpdate,
		Warmup:    time.Millisecond,
		Drain:     time.Millisecond,
		StopGrace: time.Second,
	})
}

func TestRunScenarioOrdering(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.exitOnSignal["receiver.py"] = true
	fd.exitNow("sender.py", nil) // the sender exits as soon as it starts

	var (
		mu     sync.Mutex
		states []model.RunState
	)
	sup := newTestSupervisor(fd, func(update RunUpdate) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, update.State)
	})

	result, err := sup.RunScenario(context.Background(), mustResolve(t, "reliable-only"))
	if err != nil {
		t.Fatal(err)
	}
	if result.SenderExitCode != 0 {
		t.Fatal("unexpected sender exit code", result.SenderExitCode)
	}

	// receiver start < sender start < receiver stop signal
	recvStart := fd.indexOf("start receiver.py")
	sendStart := fd.indexOf("start sender.py")
	recvStop := fd.indexOf("signal receiver.py interrupt")
	if recvStart == -1 || sendStart == -1 || recvStop == -1 {
		t.Fatal("missing events", fd.events)
	}
	if !(recvStart < sendStart && sendStart < recvStop) {
		t.Fatal("wrong ordering", fd.events)
	}

	expectStates := []model.RunState{
		model.RunStateReceiverStarting, model.RunStateWarmingUp,
		model.RunStateSenderStarting, model.RunStateSenderRunning,
		model.RunStateDraining, model.RunStateReceiverStopping,
		model.RunStateIdle,
	}
	if diff := cmp.Diff(expectStates, states); diff != "" {
		t.Fatal(diff)
	}
}

func TestRunScenarioReceiverStartFailure(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.startFailures["receiver.py"] = errors.New("no such file")

	sup := newTestSupervisor(fd, nil)
	result, err := sup.RunScenario(context.Background(), mustResolve(t, "reliable-only"))
	if !errors.Is(err, ErrReceiverStartFailed) {
		t.Fatal("unexpected error", err)
	}
	if result != nil {
		t.Fatal("expected no result")
	}
	if fd.indexOf("start sender.py") != -1 {
		t.Fatal("the sender must not start when the receiver fails to launch")
	}
}

func TestRunScenarioSenderStartFailure(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.startFailures["sender.py"] = errors.New("no such file")
	fd.exitOnSignal["receiver.py"] = true

	sup := newTestSupervisor(fd, nil)
	result, err := sup.RunScenario(context.Background(), mustResolve(t, "reliable-only"))
	if !errors.Is(err, ErrSenderStartFailed) {
		t.Fatal("unexpected error", err)
	}
	if result != nil {
		t.Fatal("expected no result")
	}
	if fd.indexOf("signal receiver.py terminated") == -1 {
		t.Fatal("the already-running receiver must be terminated", fd.events)
	}
}

func TestRunScenarioStopEscalation(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.exitNow("sender.py", nil)
	// the receiver ignores the graceful stop signal

	sup := New(&Config{
		Logger:    model.DiscardLogger,
		Deps:      fd,
		Warmup:    time.Millisecond,
		Drain:     time.Millisecond,
		StopGrace: 10 * time.Millisecond,
	})
	result, err := sup.RunScenario(context.Background(), mustResolve(t, "reliable-only"))
	if err != nil {
		t.Fatal(err)
	}
	if result == nil {
		t.Fatal("the run must still complete after escalation")
	}
	if fd.indexOf("kill receiver.py") == -1 {
		t.Fatal("expected the forced termination", fd.events)
	}
}

func TestRunScenarioCanceledBeforeStart(t *testing.T) {
	// An interrupt may land before RunScenario is entered, e.g.
	// during the observation delay. We must not launch anything in
	// that case.
	withFakeShell(t)
	fd := newFakeDeps()

	sup := newTestSupervisor(fd, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := sup.RunScenario(ctx, mustResolve(t, "reliable-only"))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatal("unexpected error", err)
	}
	if result != nil {
		t.Fatal("expected no result")
	}
	if len(fd.events) != 0 {
		t.Fatal("no process must be started", fd.events)
	}
}

func TestRunScenarioInterruptDuringWarmup(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.exitOnSignal["receiver.py"] = true

	sup := New(&Config{
		Logger:    model.DiscardLogger,
		Deps:      fd,
		Warmup:    time.Hour, // the interrupt must preempt this
		Drain:     time.Millisecond,
		StopGrace: time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := sup.RunScenario(ctx, mustResolve(t, "reliable-only"))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatal("unexpected error", err)
	}
	if result != nil {
		t.Fatal("expected no result")
	}
	if fd.indexOf("start sender.py") != -1 {
		t.Fatal("the sender must never start", fd.events)
	}
	if fd.indexOf("signal receiver.py terminated") == -1 {
		t.Fatal("the receiver must be terminated", fd.events)
	}
}

func TestRunScenarioInterruptWhileSenderRuns(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.exitOnSignal["receiver.py"] = true
	fd.exitOnSignal["sender.py"] = true
	// the sender never exits on its own

	sup := newTestSupervisor(fd, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := sup.RunScenario(ctx, mustResolve(t, "reliable-only"))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatal("unexpected error", err)
	}
	if result != nil {
		t.Fatal("expected no result")
	}
	if fd.indexOf("signal sender.py terminated") == -1 {
		t.Fatal("the sender must be terminated", fd.events)
	}
	if fd.indexOf("signal receiver.py terminated") == -1 {
		t.Fatal("the receiver must be terminated", fd.events)
	}
}

func TestRunScenarioNonzeroSenderExit(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.exitOnSignal["receiver.py"] = true
	fd.exitNow("sender.py", errors.New("exit status 3"))

	sup := newTestSupervisor(fd, nil)
	result, err := sup.RunScenario(context.Background(), mustResolve(t, "reliable-only"))
	if err != nil {
		t.Fatal("a nonzero sender exit must not fail the run:", err)
	}
	if result.SenderExitCode >= 0 {
		t.Fatal("expected a failure exit code", result.SenderExitCode)
	}
	// the ordinary grace-drain-then-stop sequence still runs
	if fd.indexOf("signal receiver.py interrupt") == -1 {
		t.Fatal("expected the graceful receiver stop", fd.events)
	}
}

func TestProcStopIsIdempotent(t *testing.T) {
	withFakeShell(t)
	fd := newFakeDeps()
	fd.exitOnSignal["receiver.py"] = true

	sup := newTestSupervisor(fd, nil)
	proc, err := sup.startRole(scenario.RoleReceiver)
	if err != nil {
		t.Fatal(err)
	}
	if code, _ := proc.Stop(stopSignal, time.Second); code != 0 {
		t.Fatal("unexpected exit code", code)
	}
	proc.Terminate() // must be a safe no-op
	if got := fd.indexOf("signal receiver.py terminated"); got != -1 {
		t.Fatal("the second stop must not signal again", fd.events)
	}
}
