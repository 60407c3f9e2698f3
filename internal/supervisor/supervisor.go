// Package supervisor starts, tracks, and stops the sender/receiver
// pair of processes for one scenario run.
//
// The supervisor enforces the run ordering contract: the receiver
// always starts strictly before the sender; the sender only starts
// after the warm-up interval; the receiver is only stopped after the
// sender has exited and the drain interval has elapsed. Every wait
// selects on the run context so an operator interrupt preempts any
// suspension point.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/Weiennn/cs3103-assignment4/internal/model"
	"github.com/Weiennn/cs3103-assignment4/internal/scenario"
	"github.com/Weiennn/cs3103-assignment4/internal/shellx"
	"golang.org/x/sys/execabs"
)

// ErrReceiverStartFailed indicates that launching the receiver failed.
var ErrReceiverStartFailed = errors.New("supervisor: receiver start failed")

// ErrSenderStartFailed indicates that launching the sender failed.
var ErrSenderStartFailed = errors.New("supervisor: sender start failed")

// ErrInterrupted indicates that the run was preempted by an interrupt.
var ErrInterrupted = errors.New("supervisor: run interrupted")

// stopSignal is the graceful stop signal for the receiver. The
// transport programs emit their session summary on keyboard
// interrupt, so we stop them the same way the operator would.
var stopSignal os.Signal = syscall.SIGINT

// RunUpdate is a snapshot of the supervisor state published at every
// transition, so that the interrupt path always sees the live
// process handles.
type RunUpdate struct {
	// State is the current run state.
	State model.RunState

	// Sender is the sender handle, nil unless the sender is alive.
	Sender *Proc

	// Receiver is the receiver handle, nil unless the receiver is alive.
	Receiver *Proc
}

// Config contains the supervisor configuration.
type Config struct {
	// Logger is the MANDATORY logger.
	Logger model.Logger

	// Deps OPTIONALLY overrides the runtime dependencies.
	Deps Deps

	// ResolveCommand maps a role to the command line playing it.
	ResolveCommand func(role scenario.Role) string

	// OnUpdate is OPTIONALLY invoked at every state transition.
	OnUpdate func(update RunUpdate)

	// Warmup is the wait between receiver start and sender start.
	Warmup time.Duration

	// Drain is the wait between sender exit and receiver stop.
	Drain time.Duration

	// StopGrace bounds the graceful receiver stop.
	StopGrace time.Duration
}

// Supervisor runs the sender/receiver pair of a scenario. Use
// [New] to construct an instance.
type Supervisor struct {
	conf *Config
}

// New creates a new [Supervisor] with the given config.
func New(conf *Config) *Supervisor {
	if conf.Logger == nil {
		conf.Logger = model.DiscardLogger
	}
	if conf.Deps == nil {
		conf.Deps = DepsStdlib{}
	}
	if conf.ResolveCommand == nil {
		conf.ResolveCommand = func(role scenario.Role) string {
			return role.DefaultCommand()
		}
	}
	return &Supervisor{conf: conf}
}

// RunScenario runs the scenario's receiver and sender and returns the
// collected exit statuses. Launch failures are fatal to this run only
// and never leave an orphan process behind.
func (s *Supervisor) RunScenario(ctx context.Context, sc *scenario.Scenario) (*model.RunResult, error) {
	logger := s.conf.Logger

	// An interrupt may land between the observation delay and this
	// call; in that case we must not launch anything.
	if ctx.Err() != nil {
		return nil, ErrInterrupted
	}

	s.publish(model.RunStateReceiverStarting, nil, nil)
	receiver, err := s.startRole(sc.ReceiverRole)
	if err != nil {
		s.publish(model.RunStateIdle, nil, nil)
		return nil, fmt.Errorf("%w: %s", ErrReceiverStartFailed, err)
	}
	logger.Infof("supervisor: receiver started (%s)", sc.ReceiverRole)

	s.publish(model.RunStateWarmingUp, nil, receiver)
	if err := s.sleep(ctx, s.conf.Warmup); err != nil {
		return nil, s.abort(nil, receiver)
	}

	s.publish(model.RunStateSenderStarting, nil, receiver)
	sender, err := s.startRole(sc.SenderRole)
	if err != nil {
		logger.Warn("supervisor: sender launch failed, stopping the receiver")
		receiver.Terminate()
		s.publish(model.RunStateIdle, nil, nil)
		return nil, fmt.Errorf("%w: %s", ErrSenderStartFailed, err)
	}
	logger.Infof("supervisor: sender started (%s)", sc.SenderRole)

	s.publish(model.RunStateSenderRunning, sender, receiver)
	senderCode, err := sender.AwaitExit(ctx)
	if err != nil {
		return nil, s.abort(sender, receiver)
	}
	if senderCode != 0 {
		logger.Warnf("supervisor: sender exited with status %d", senderCode)
	} else {
		logger.Info("supervisor: sender completed")
	}

	s.publish(model.RunStateDraining, nil, receiver)
	if err := s.sleep(ctx, s.conf.Drain); err != nil {
		return nil, s.abort(nil, receiver)
	}

	s.publish(model.RunStateReceiverStopping, nil, receiver)
	receiverCode, escalated := receiver.Stop(stopSignal, s.conf.StopGrace)
	if escalated {
		logger.Warnf(
			"supervisor: receiver did not stop within %s, killed it",
			s.conf.StopGrace,
		)
	} else {
		logger.Info("supervisor: receiver stopped")
	}

	s.publish(model.RunStateIdle, nil, nil)
	return &model.RunResult{
		SenderExitCode:   senderCode,
		ReceiverExitCode: receiverCode,
	}, nil
}

// startRole launches the external program playing the given role.
func (s *Supervisor) startRole(role scenario.Role) (*Proc, error) {
	argv, err := shellx.ParseCommandLine(s.conf.ResolveCommand(role))
	if err != nil {
		return nil, err
	}
	cmd := &execabs.Cmd{
		Path:   argv.P,
		Args:   append([]string{argv.P}, argv.V...),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	s.conf.Logger.Infof("supervisor: + %s", argv.String())
	if err := s.conf.Deps.StartCmd(cmd); err != nil {
		return nil, err
	}
	p := &Proc{
		name:     role.String(),
		cmd:      cmd,
		deps:     s.conf.Deps,
		exited:   make(chan struct{}),
		stopOnce: &sync.Once{},
	}
	// reap the process exactly once, as soon as it exits
	go func() {
		p.waitErr = s.conf.Deps.WaitCmd(cmd)
		close(p.exited)
	}()
	return p, nil
}

// abort best-effort terminates whatever is still running and resolves
// the run back to the idle state.
func (s *Supervisor) abort(sender, receiver *Proc) error {
	s.conf.Logger.Warn("supervisor: aborting the run")
	s.publish(model.RunStateAborting, sender, receiver)
	if sender != nil {
		sender.Terminate()
	}
	if receiver != nil {
		receiver.Terminate()
	}
	s.publish(model.RunStateIdle, nil, nil)
	return ErrInterrupted
}

// sleep waits for the given interval unless the context is canceled.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish emits a state transition to the registered observer.
func (s *Supervisor) publish(state model.RunState, sender, receiver *Proc) {
	s.conf.Logger.Debugf("supervisor: state %s", state)
	if s.conf.OnUpdate != nil {
		s.conf.OnUpdate(RunUpdate{State: state, Sender: sender, Receiver: receiver})
	}
}
