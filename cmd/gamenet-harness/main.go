package main

import (
	"github.com/Weiennn/cs3103-assignment4/internal/cli/app"
	_ "github.com/Weiennn/cs3103-assignment4/internal/cli/list"
	_ "github.com/Weiennn/cs3103-assignment4/internal/cli/reset"
	_ "github.com/Weiennn/cs3103-assignment4/internal/cli/run"
	_ "github.com/Weiennn/cs3103-assignment4/internal/cli/show"
	_ "github.com/Weiennn/cs3103-assignment4/internal/cli/version"
	"github.com/apex/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.WithError(err).Fatal("gamenet-harness exited with an error")
	}
}
