// Package model contains the core data model shared by the harness packages.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Logger defines the common interface that a logger should have. It is
// out of the box compatible with `log.Log` in `apex/log`.
type Logger interface {
	// Debug emits a debug message.
	Debug(msg string)

	// Debugf formats and emits a debug message.
	Debugf(format string, v ...interface{})

	// Info emits an informational message.
	Info(msg string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...interface{})

	// Warn emits a warning message.
	Warn(msg string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...interface{})
}

// DiscardLogger is the default logger that discards its input.
var DiscardLogger Logger = logDiscarder{}

// logDiscarder discards all log messages.
type logDiscarder struct{}

func (logDiscarder) Debug(msg string) {}

func (logDiscarder) Debugf(format string, v ...interface{}) {}

func (logDiscarder) Info(msg string) {}

func (logDiscarder) Infof(format string, v ...interface{}) {}

func (logDiscarder) Warn(msg string) {}

func (logDiscarder) Warnf(format string, v ...interface{}) {}

// Param identifies a single field of an [ImpairmentProfile] that a
// scenario may require the operator to provide.
type Param int

const (
	// ParamDelay is the base one-way delay in milliseconds.
	ParamDelay = Param(iota)

	// ParamJitter is the delay variation in milliseconds.
	ParamJitter

	// ParamLoss is the packet loss percentage.
	ParamLoss

	// ParamReorder is the packet reordering percentage.
	ParamReorder

	// ParamCorrelation is the correlation percentage applied to
	// loss and reordering decisions.
	ParamCorrelation
)

// String implements fmt.Stringer.
func (p Param) String() string {
	switch p {
	case ParamDelay:
		return "delay"
	case ParamJitter:
		return "jitter"
	case ParamLoss:
		return "loss"
	case ParamReorder:
		return "reorder"
	case ParamCorrelation:
		return "correlation"
	default:
		return "unknown"
	}
}

// ErrInvalidProfile indicates that one or more fields of an
// [ImpairmentProfile] are out of their documented range.
var ErrInvalidProfile = errors.New("model: invalid impairment profile")

// ImpairmentProfile describes one network condition to install on the
// interface under test. The zero value is the baseline (no impairment).
//
// A profile is constructed fresh from operator input immediately before
// it is applied and is discarded after teardown; it is never persisted.
type ImpairmentProfile struct {
	// DelayMs is the base delay in milliseconds (>= 0).
	DelayMs int64

	// JitterMs is the delay variation in milliseconds (>= 0).
	JitterMs int64

	// LossPct is the loss percentage in [0, 100].
	LossPct int64

	// ReorderPct is the reordering percentage in [0, 100].
	ReorderPct int64

	// CorrelationPct is the correlation percentage in [0, 100].
	CorrelationPct int64
}

// Validate returns an error wrapping [ErrInvalidProfile] when any field
// is outside of its documented range.
func (p *ImpairmentProfile) Validate() error {
	if p.DelayMs < 0 {
		return fmt.Errorf("%w: delay must be >= 0", ErrInvalidProfile)
	}
	if p.JitterMs < 0 {
		return fmt.Errorf("%w: jitter must be >= 0", ErrInvalidProfile)
	}
	for _, entry := range []struct {
		name  string
		value int64
	}{
		{"loss", p.LossPct},
		{"reorder", p.ReorderPct},
		{"correlation", p.CorrelationPct},
	} {
		if entry.value < 0 || entry.value > 100 {
			return fmt.Errorf("%w: %s must be in [0, 100]", ErrInvalidProfile, entry.name)
		}
	}
	return nil
}

// IsZero returns true when every field is zero, in which case applying
// the profile leaves the interface in its baseline state.
func (p *ImpairmentProfile) IsZero() bool {
	return p.DelayMs == 0 && p.JitterMs == 0 && p.LossPct == 0 &&
		p.ReorderPct == 0 && p.CorrelationPct == 0
}

// String returns a compact human readable summary of the profile.
func (p *ImpairmentProfile) String() string {
	if p.IsZero() {
		return "baseline (no impairment)"
	}
	var parts []string
	if p.DelayMs > 0 || p.JitterMs > 0 {
		parts = append(parts, fmt.Sprintf("delay %dms ±%dms", p.DelayMs, p.JitterMs))
	}
	if p.LossPct > 0 {
		parts = append(parts, fmt.Sprintf("loss %d%%", p.LossPct))
	}
	if p.ReorderPct > 0 {
		parts = append(parts, fmt.Sprintf("reorder %d%%", p.ReorderPct))
	}
	if p.CorrelationPct > 0 {
		parts = append(parts, fmt.Sprintf("correlation %d%%", p.CorrelationPct))
	}
	return strings.Join(parts, ", ")
}

// RunState is the state of the supervisor during a single scenario run.
type RunState int

const (
	// RunStateIdle means no run is in progress.
	RunStateIdle = RunState(iota)

	// RunStateReceiverStarting means we are launching the receiver.
	RunStateReceiverStarting

	// RunStateWarmingUp means the receiver has started and we are
	// waiting for it to reach a listening-ready state.
	RunStateWarmingUp

	// RunStateSenderStarting means we are launching the sender.
	RunStateSenderStarting

	// RunStateSenderRunning means we are waiting for the sender to exit.
	RunStateSenderRunning

	// RunStateDraining means the sender has exited and we are letting
	// the receiver flush its trailing state.
	RunStateDraining

	// RunStateReceiverStopping means we are stopping the receiver.
	RunStateReceiverStopping

	// RunStateAborting means an interrupt preempted the run.
	RunStateAborting
)

// String implements fmt.Stringer.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateReceiverStarting:
		return "receiver-starting"
	case RunStateWarmingUp:
		return "warming-up"
	case RunStateSenderStarting:
		return "sender-starting"
	case RunStateSenderRunning:
		return "sender-running"
	case RunStateDraining:
		return "draining"
	case RunStateReceiverStopping:
		return "receiver-stopping"
	case RunStateAborting:
		return "aborting"
	default:
		return "unknown"
	}
}

// RunResult is the outcome of a completed scenario run.
type RunResult struct {
	// SenderExitCode is the exit code of the sender process.
	SenderExitCode int

	// ReceiverExitCode is the exit code of the receiver process. The
	// receiver is stopped by signal, so a negative value here is the
	// common case rather than a failure.
	ReceiverExitCode int
}
