// Package version implements the version command.
package version

import (
	"fmt"

	"github.com/Weiennn/cs3103-assignment4/internal/cli/root"
	"github.com/Weiennn/cs3103-assignment4/internal/version"
	"github.com/alecthomas/kingpin/v2"
)

func init() {
	cmd := root.Command("version", "Show version.")
	cmd.Action(func(_ *kingpin.ParseContext) error {
		fmt.Println(version.Version)
		return nil
	})
}
