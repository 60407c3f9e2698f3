// Package show implements the show command.
package show

import (
	"github.com/Weiennn/cs3103-assignment4/internal/cli/root"
	"github.com/alecthomas/kingpin/v2"
	"github.com/apex/log"
)

func init() {
	cmd := root.Command("show", "Show the active queuing discipline on the interface under test")
	cmd.Action(func(_ *kingpin.ParseContext) error {
		h, err := root.Init()
		if err != nil {
			return err
		}
		snapshot, err := h.Controller().Describe(h.InterfaceName())
		if err != nil {
			log.WithError(err).Error("failed to read the queuing discipline")
			return err
		}
		if snapshot == "" {
			log.Infof("%s: no queuing discipline installed", h.InterfaceName())
			return nil
		}
		log.WithFields(log.Fields{
			"type":      "table",
			"interface": h.InterfaceName(),
			"qdisc":     snapshot,
		}).Info("active configuration")
		return nil
	})
}
