// Package qdisc applies and clears network impairment on a named
// interface by driving the kernel traffic-control facility through
// the tc(8) command.
//
// The controller owns the root queuing discipline of the interface it
// is given: Apply installs a netem rule built from the non-zero fields
// of an impairment profile, Clear returns the interface to its
// baseline state, and Describe reports the active configuration
// without mutating it. Apply and Clear are serialized so that a new
// configuration is never installed while a previous teardown is still
// outstanding.
package qdisc

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/Weiennn/cs3103-assignment4/internal/model"
	"github.com/Weiennn/cs3103-assignment4/internal/shellx"
	pkgerrors "github.com/pkg/errors"
)

// ErrConfigurationFailed indicates that we could not change the
// queuing discipline of the interface.
var ErrConfigurationFailed = errors.New("qdisc: configuration failed")

// Controller manipulates the root queuing discipline of network
// interfaces. The zero value is not valid; use [NewController].
type Controller struct {
	// logger is where we report the commands we run.
	logger model.Logger

	// mu serializes Apply and Clear.
	mu sync.Mutex
}

// NewController creates a new [Controller] using the given logger.
func NewController(logger model.Logger) *Controller {
	if logger == nil {
		logger = model.DiscardLogger
	}
	return &Controller{logger: logger}
}

// Apply clears any existing configuration on the interface and then
// installs the queuing discipline described by the profile. When the
// profile has no non-zero field, the interface is left in its
// baseline state and Apply reports success.
func (c *Controller) Apply(iface string, profile *model.ImpairmentProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := profile.Validate(); err != nil {
		return pkgerrors.Wrap(err, ErrConfigurationFailed.Error())
	}
	if err := c.clearLocked(iface); err != nil {
		return err
	}
	if profile.IsZero() {
		c.logger.Debugf("qdisc: empty profile, leaving %s at baseline", iface)
		return nil
	}
	argv, err := shellx.NewArgv("tc", "qdisc", "add", "dev", iface, "root", "netem")
	if err != nil {
		return pkgerrors.Wrap(err, ErrConfigurationFailed.Error())
	}
	argv.Append(netemArgs(profile)...)
	if _, err := shellx.OutputEx(c.logger, argv); err != nil {
		return pkgerrors.Wrap(err, ErrConfigurationFailed.Error())
	}
	return nil
}

// Clear removes any queuing discipline installed on the interface.
// Clearing an interface that is already at baseline is a success.
func (c *Controller) Clear(iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearLocked(iface)
}

func (c *Controller) clearLocked(iface string) error {
	_, err := shellx.Output(c.logger, "tc", "qdisc", "del", "dev", iface, "root")
	if err != nil && !isAlreadyClean(err) {
		return pkgerrors.Wrap(err, ErrConfigurationFailed.Error())
	}
	return nil
}

// Describe returns a snapshot of the queuing discipline currently
// installed on the interface. It is read-only and does not require
// holding the apply/clear lock.
func (c *Controller) Describe(iface string) (string, error) {
	out, err := shellx.Output(c.logger, "tc", "qdisc", "show", "dev", iface)
	if err != nil {
		return "", pkgerrors.Wrap(err, ErrConfigurationFailed.Error())
	}
	return strings.TrimSpace(string(out)), nil
}

// netemArgs maps the non-zero fields of the profile to netem
// parameters. Delay and jitter form a single latency/variation pair;
// the correlation percentage attaches to both loss and reordering.
func netemArgs(profile *model.ImpairmentProfile) []string {
	var args []string
	if profile.DelayMs > 0 || profile.JitterMs > 0 {
		args = append(args, "delay", milliseconds(profile.DelayMs))
		if profile.JitterMs > 0 {
			args = append(args, milliseconds(profile.JitterMs))
		}
	}
	if profile.LossPct > 0 {
		args = append(args, "loss", percentage(profile.LossPct))
		if profile.CorrelationPct > 0 {
			args = append(args, percentage(profile.CorrelationPct))
		}
	}
	if profile.ReorderPct > 0 {
		args = append(args, "reorder", percentage(profile.ReorderPct))
		if profile.CorrelationPct > 0 {
			args = append(args, percentage(profile.CorrelationPct))
		}
	}
	return args
}

func milliseconds(v int64) string {
	return strconv.FormatInt(v, 10) + "ms"
}

func percentage(v int64) string {
	return strconv.FormatInt(v, 10) + "%"
}

// cleanDiagnostics are the tc(8) stderr diagnostics telling us that
// there was no root queuing discipline to delete, which Clear treats
// as success rather than failure.
var cleanDiagnostics = []string{
	"No such file or directory",
	"Cannot delete qdisc with handle of zero",
	"Invalid handle",
}

// isAlreadyClean returns true when the error means that the interface
// carried no queuing discipline in the first place.
func isAlreadyClean(err error) bool {
	var withStderr *shellx.ErrorWithStderr
	if !errors.As(err, &withStderr) {
		return false
	}
	for _, diagnostic := range cleanDiagnostics {
		if strings.Contains(withStderr.Stderr, diagnostic) {
			return true
		}
	}
	return false
}
