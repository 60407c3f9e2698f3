// Package harness contains the harness CLI context.
//
// The context owns everything with process-wide scope: the parsed
// configuration, the impairment controller for the interface under
// test, the interrupt trap, and the snapshot of the run currently in
// progress that the interrupt path reads. The snapshot replaces the
// ambient global state a trap handler would otherwise depend on: the
// supervisor publishes every state transition here, and the trap only
// ever reads the latest snapshot.
package harness

import (
	_ "embed" // because we embed a file
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Weiennn/cs3103-assignment4/internal/config"
	"github.com/Weiennn/cs3103-assignment4/internal/qdisc"
	"github.com/Weiennn/cs3103-assignment4/internal/supervisor"
	"github.com/apex/log"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// ExitCodeInterrupt is the distinguished status we exit with when the
// operator interrupts a session.
const ExitCodeInterrupt = 130

// osExit is overridable in the tests.
var osExit = os.Exit

// Harness is the gamenet-harness CLI context.
type Harness struct {
	// config is the parsed configuration.
	config *config.Config

	// configPath is empty unless the operator chose a custom path.
	configPath string

	// home is the harness home directory.
	home string

	// iface is the interface under test.
	iface string

	// controller manipulates the interface queuing discipline.
	controller *qdisc.Controller

	// isTerminated is nonzero after an interrupt was trapped.
	isTerminated atomic.Int64

	// mu protects current.
	mu sync.Mutex

	// current is the latest run snapshot.
	current supervisor.RunUpdate

	// cancelRun interrupts the waits of the run in progress.
	cancelRun func()

	// signalOnce ensures we only register the trap once.
	signalOnce sync.Once
}

// NewHarness creates a new harness context. Both arguments may be
// empty, in which case we use the default locations.
func NewHarness(configPath, homePath string) *Harness {
	return &Harness{
		config:     &config.Config{},
		configPath: configPath,
		home:       homePath,
	}
}

// Init initializes the harness context: it materializes the home
// directory and the default config on first use, reads the config,
// and builds the impairment controller. The ifaceOverride argument,
// when not empty, wins over the configured interface.
func (h *Harness) Init(ifaceOverride string) error {
	if h.home == "" {
		home, err := DefaultHomePath()
		if err != nil {
			return err
		}
		h.home = home
	}
	if err := MaybeInitializeHome(h.home); err != nil {
		return err
	}

	var err error
	if h.configPath != "" {
		log.Debugf("reading config file from %s", h.configPath)
		h.config, err = config.ReadConfig(h.configPath)
	} else {
		log.Debug("reading default config file")
		h.config, err = InitDefaultConfig(h.home)
	}
	if err != nil {
		return err
	}
	if err := h.config.MaybeMigrate(); err != nil {
		return errors.Wrap(err, "migrating config")
	}

	h.iface = h.config.InterfaceName()
	if ifaceOverride != "" {
		h.iface = ifaceOverride
	}
	h.controller = qdisc.NewController(log.Log)
	return nil
}

// Config returns the configuration.
func (h *Harness) Config() *config.Config {
	return h.config
}

// InterfaceName returns the interface under test.
func (h *Harness) InterfaceName() string {
	return h.iface
}

// Controller returns the impairment controller.
func (h *Harness) Controller() *qdisc.Controller {
	return h.controller
}

// IsTerminated checks whether an interrupt has been trapped and the
// session should therefore wind down.
func (h *Harness) IsTerminated() bool {
	return h.isTerminated.Load() != 0
}

// Terminate flags the session as terminated.
func (h *Harness) Terminate() {
	h.isTerminated.Add(1)
}

// UpdateRun records the latest run snapshot. The supervisor invokes
// this at every state transition so the interrupt path always sees
// the live process handles.
func (h *Harness) UpdateRun(update supervisor.RunUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = update
}

// SetCancelRun registers the cancel function of the run context, so
// the trap can preempt any suspension point of the run in progress.
func (h *Harness) SetCancelRun(cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelRun = cancel
}

// snapshot returns the latest run snapshot and cancel function.
func (h *Harness) snapshot() (supervisor.RunUpdate, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.cancelRun
}

// ListenForSignals registers the process-wide interrupt trap. When
// SIGINT or SIGTERM arrives, we force the running processes and the
// interface back to a safe terminal state and exit with
// [ExitCodeInterrupt]. Registering more than once is a no-op.
func (h *Harness) ListenForSignals() {
	h.signalOnce.Do(func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-s
			log.Info("caught a stop signal, shutting down cleanly")
			h.Interrupt()
		}()
	})
}

// Interrupt runs the forced-cleanup path: best-effort terminate the
// sender, then the receiver, clear the interface, wait briefly for
// the above to settle, and exit nonzero. It is safe to invoke with no
// run in progress, in which case terminating and clearing are no-ops.
func (h *Harness) Interrupt() {
	h.Terminate()
	update, cancel := h.snapshot()
	if cancel != nil {
		cancel()
	}
	if update.Sender != nil {
		log.Infof("terminating the %s process", update.Sender.Name())
		update.Sender.Terminate()
	}
	if update.Receiver != nil {
		log.Infof("terminating the %s process", update.Receiver.Name())
		update.Receiver.Terminate()
	}
	if h.controller != nil {
		if err := h.controller.Clear(h.iface); err != nil {
			log.WithError(err).Warnf("failed to clear %s", h.iface)
		}
	}
	time.Sleep(h.settle())
	osExit(ExitCodeInterrupt)
}

// settle returns the settle delay. The trap may fire before Init has
// loaded the config, in which case we use the default.
func (h *Harness) settle() time.Duration {
	if h.config != nil {
		return h.config.Settle()
	}
	return 500 * time.Millisecond
}

// DefaultHomePath returns the default harness home directory.
func DefaultHomePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gamenet-harness"), nil
}

// ConfigPath returns the path of the config file inside the home.
func ConfigPath(home string) string {
	return filepath.Join(home, "config.json")
}

// MaybeInitializeHome does the setup for a new harness home.
func MaybeInitializeHome(home string) error {
	if _, err := os.Stat(home); err != nil {
		if err := os.MkdirAll(home, 0700); err != nil {
			return err
		}
	}
	return nil
}

//go:embed default-config.json
var defaultConfig []byte

// InitDefaultConfig reads the config from the home directory or
// creates it if missing.
func InitDefaultConfig(home string) (*config.Config, error) {
	configPath := ConfigPath(home)
	c, err := config.ReadConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("writing default config to %s", configPath)
			if err = os.WriteFile(configPath, defaultConfig, 0644); err != nil {
				return nil, err
			}
			return InitDefaultConfig(home)
		}
		return nil, err
	}
	return c, nil
}
