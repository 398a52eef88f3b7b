package main

import (
	"os"
	"time"

	"github.com/bruin-data/tripfacts/cmd"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	isDebug := false
	color.NoColor = os.Getenv("NO_COLOR") != ""

	versionCommand := cmd.VersionCmd(commit)

	cli.VersionPrinter = func(cCtx *cli.Context) {
		err := versionCommand.Action(cCtx)
		if err != nil {
			panic(err)
		}
	}

	app := &cli.App{
		Name:     "tripfacts",
		Version:  version,
		Usage:    "Merge staged NYC taxi trip files into a dropoff-date partitioned fact table",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				Value:       false,
				Usage:       "show debug information",
				Destination: &isDebug,
			},
		},
		Commands: []*cli.Command{
			cmd.Merge(&isDebug),
			cmd.Inspect(&isDebug),
			cmd.Config(),
			versionCommand,
		},
	}

	_ = app.Run(os.Args)
}
