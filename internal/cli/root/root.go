// Package root contains the root command.
package root

import (
	"github.com/Weiennn/cs3103-assignment4/internal/harness"
	logcli "github.com/Weiennn/cs3103-assignment4/internal/log/handlers/cli"
	"github.com/Weiennn/cs3103-assignment4/internal/version"
	"github.com/alecthomas/kingpin/v2"
	"github.com/apex/log"
)

// Cmd is the root command
var Cmd = kingpin.New("gamenet-harness", "Impairment test harness for the gameNet transport")

// Command is syntax sugar for defining sub-commands
var Command = Cmd.Command

// Init should be called by all subcommands that care to have a
// harness.Harness instance
var Init func() (*harness.Harness, error)

func init() {
	configPath := Cmd.Flag("config", "Set a custom config file path").Short('c').String()
	iface := Cmd.Flag("interface", "Network interface under test").Short('i').String()
	verbose := Cmd.Flag("verbose", "Enable verbose log output.").Short('v').Bool()

	Cmd.PreAction(func(ctx *kingpin.ParseContext) error {
		log.SetHandler(logcli.Default)
		if *verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("gamenet-harness version %s", version.Version)
		}

		Init = func() (*harness.Harness, error) {
			h := harness.NewHarness(*configPath, "")
			if err := h.Init(*iface); err != nil {
				return nil, err
			}
			return h, nil
		}
		return nil
	})
}
