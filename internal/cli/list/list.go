// Package list implements the list command.
package list

import (
	"strings"

	"github.com/Weiennn/cs3103-assignment4/internal/cli/root"
	"github.com/Weiennn/cs3103-assignment4/internal/scenario"
	"github.com/alecthomas/kingpin/v2"
	"github.com/apex/log"
)

func init() {
	cmd := root.Command("list", "List the scenarios in the catalog")
	cmd.Action(func(_ *kingpin.ParseContext) error {
		for _, sc := range scenario.All() {
			var params []string
			for _, p := range sc.RequiredParams {
				params = append(params, p.String())
			}
			required := strings.Join(params, ", ")
			if required == "" {
				required = "none"
			}
			log.WithFields(log.Fields{
				"type":     "table",
				"id":       sc.ID,
				"about":    sc.Description,
				"params":   required,
				"sender":   sc.SenderRole.String(),
				"receiver": sc.ReceiverRole.String(),
			}).Info("scenario")
		}
		return nil
	})
}
