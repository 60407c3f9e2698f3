// Package reset implements the reset command.
package reset

import (
	"github.com/Weiennn/cs3103-assignment4/internal/cli/root"
	"github.com/alecthomas/kingpin/v2"
	"github.com/apex/log"
)

func init() {
	cmd := root.Command("reset", "Return the interface under test to its baseline state")
	cmd.Action(func(_ *kingpin.ParseContext) error {
		h, err := root.Init()
		if err != nil {
			return err
		}
		if err := h.Controller().Clear(h.InterfaceName()); err != nil {
			log.WithError(err).Error("failed to clear the queuing discipline")
			return err
		}
		log.Infof("%s is back at baseline", h.InterfaceName())
		return nil
	})
}
