package cmd

import (
	"fmt"

	"github.com/bruin-data/tripfacts/pkg/config"
	"github.com/urfave/cli/v2"
)

func Config() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the .tripfacts.yml configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create the config file with a local duckdb fact table, if it does not exist",
				Flags: []cli.Flag{configFileFlag()},
				Action: func(c *cli.Context) error {
					cm, err := config.LoadOrCreate(fs, c.String("config-file"))
					if err != nil {
						printError(err, "", "Failed to create the config file")
						return cli.Exit("", 1)
					}

					successPrinter.Printf("Config file ready at '%s', environments: %v\n", cm.Path(), cm.EnvironmentNames())
					return nil
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config file",
				Action: func(c *cli.Context) error {
					schema, err := config.Schema()
					if err != nil {
						printError(err, "", "Failed to generate the schema")
						return cli.Exit("", 1)
					}

					fmt.Println(string(schema))
					return nil
				},
			},
		},
	}
}
