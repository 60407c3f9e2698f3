// Package config implements the harness configuration file.
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ConfigVersion is the version of the current configuration layout.
const ConfigVersion = 1

// ReadConfig reads the configuration from the path
func ReadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseConfig(b)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	c.path = path
	return c, err
}

// ParseConfig returns config from JSON bytes.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "parsing json")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating")
	}
	return &c, nil
}

// Timing contains the fixed delays driving a scenario run, all in
// milliseconds. Zero means "use the default". These delays are a
// convention with the transport programs, not a readiness handshake,
// and are therefore best-effort by nature.
type Timing struct {
	// WarmupMs is how long to wait after starting the receiver
	// before starting the sender, so the receiver can reach a
	// listening-ready state.
	WarmupMs int64 `json:"warmup_ms"`

	// DrainMs is how long to leave the receiver running after the
	// sender has exited so it can flush trailing state and emit its
	// session summary.
	DrainMs int64 `json:"drain_ms"`

	// StopGraceMs bounds the wait after the graceful stop signal
	// before we escalate to a forceful termination.
	StopGraceMs int64 `json:"stop_grace_ms"`

	// ObserveMs is how long to display the applied configuration
	// before starting the run.
	ObserveMs int64 `json:"observe_ms"`

	// SettleMs is how long the interrupt path waits for terminations
	// and the network reset to settle before exiting.
	SettleMs int64 `json:"settle_ms"`
}

// Config for the gamenet-harness installation
type Config struct {
	// Private settings
	Comment string `json:"_"`
	Version int64  `json:"_version"`

	// Interface is the network interface under test.
	Interface string `json:"interface"`

	// Timing contains the scenario run delays.
	Timing Timing `json:"timing"`

	// Roles maps a role name to the command line that plays it,
	// overriding the built-in default for that role.
	Roles map[string]string `json:"roles"`

	mutex sync.Mutex
	path  string
}

// Write the config file in json to the path
func (c *Config) Write() error {
	c.Lock()
	defer c.Unlock()
	if c.path == "" {
		return errors.New("config file path is empty")
	}
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serializing config JSON")
	}
	if err := os.WriteFile(c.path, configJSON, 0644); err != nil {
		return errors.Wrap(err, "writing config JSON")
	}
	return nil
}

// Lock acquires the write mutex
func (c *Config) Lock() {
	c.mutex.Lock()
}

// Unlock releases the write mutex
func (c *Config) Unlock() {
	c.mutex.Unlock()
}

// Validate the config file
func (c *Config) Validate() error {
	for _, entry := range []int64{
		c.Timing.WarmupMs, c.Timing.DrainMs, c.Timing.StopGraceMs,
		c.Timing.ObserveMs, c.Timing.SettleMs,
	} {
		if entry < 0 {
			return errors.New("timing values must be >= 0")
		}
	}
	return nil
}

// MaybeMigrate upgrades the config to the current version and writes
// it back when needed.
func (c *Config) MaybeMigrate() error {
	if c.Version < ConfigVersion {
		c.Lock()
		c.Version = ConfigVersion
		c.Unlock()
		return c.Write()
	}
	return nil
}

// RoleCommand returns the command line serving the given role name,
// or the fallback when the config does not override it.
func (c *Config) RoleCommand(role string, fallback string) string {
	c.Lock()
	defer c.Unlock()
	if cmdline, ok := c.Roles[role]; ok && cmdline != "" {
		return cmdline
	}
	return fallback
}

// InterfaceName returns the configured interface, or "lo" when the
// config does not name one.
func (c *Config) InterfaceName() string {
	if c.Interface != "" {
		return c.Interface
	}
	return "lo"
}

// Default timing values, chosen to match the observed behavior of the
// transport programs on the reference deployment.
const (
	defaultWarmup    = 1 * time.Second
	defaultDrain     = 2 * time.Second
	defaultStopGrace = 3 * time.Second
	defaultObserve   = 5 * time.Second
	defaultSettle    = 500 * time.Millisecond
)

func millisOrDefault(ms int64, fallback time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// Warmup returns the warm-up interval as a duration.
func (c *Config) Warmup() time.Duration {
	return millisOrDefault(c.Timing.WarmupMs, defaultWarmup)
}

// Drain returns the drain interval as a duration.
func (c *Config) Drain() time.Duration {
	return millisOrDefault(c.Timing.DrainMs, defaultDrain)
}

// StopGrace returns the graceful stop window as a duration.
func (c *Config) StopGrace() time.Duration {
	return millisOrDefault(c.Timing.StopGraceMs, defaultStopGrace)
}

// Observe returns the observation delay as a duration.
func (c *Config) Observe() time.Duration {
	return millisOrDefault(c.Timing.ObserveMs, defaultObserve)
}

// Settle returns the interrupt settle delay as a duration.
func (c *Config) Settle() time.Duration {
	return millisOrDefault(c.Timing.SettleMs, defaultSettle)
}
