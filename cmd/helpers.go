package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"

	"github.com/bruin-data/tripfacts/pkg/config"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func configFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config-file",
		EnvVars: []string{"TRIPFACTS_CONFIG_FILE"},
		Usage:   "the path to the .tripfacts.yml file",
		Value:   defaultConfigFile,
	}
}

func environmentFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "environment",
		Aliases: []string{"env", "e"},
		Usage:   "the environment to use, defaults to the default_environment of the config file",
	}
}

// loadEnvironment reads the config file, switches to the requested environment and applies
// the --var overrides.
func loadEnvironment(c *cli.Context) (*config.Config, error) {
	cm, err := config.LoadFromFile(fs, c.String("config-file"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load the config file at '%s'", c.String("config-file"))
	}

	if err := cm.SelectEnvironment(c.String("environment")); err != nil {
		return nil, err
	}

	if err := cm.ApplyOverrides(c.StringSlice("var")); err != nil {
		return nil, err
	}

	return cm, nil
}

// parseFamilies turns the --family values into families, all of them when none is given.
func parseFamilies(values []string) ([]trip.Family, error) {
	if len(values) == 0 {
		return trip.Families(), nil
	}

	known := trip.Families()
	out := make([]trip.Family, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			f := trip.Family(strings.ToLower(strings.TrimSpace(part)))
			if f == "" {
				continue
			}
			if !lo.Contains(known, f) {
				return nil, errors.Errorf("unknown family '%s', supported families are: %s", f, strings.Join(lo.Map(known, func(f trip.Family, _ int) string { return f.String() }), ", "))
			}
			out = append(out, f)
		}
	}

	out = lo.Uniq(out)
	if len(out) == 0 {
		return nil, errors.New("no family selected")
	}
	return out, nil
}

func printErrorJSON(err error) {
	js, err := json.Marshal(ErrorResponse{
		Error: err.Error(),
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(string(js))
}

func printError(err error, output string, message string) {
	errorMessage := err.Error()
	if output == "json" {
		if message != "" {
			errorMessage = message + ": " + errorMessage
		}
		printErrorJSON(errors.New(errorMessage))
		return
	}

	if message != "" {
		errorPrinter.Println(message)
	}
	errorPrinter.Println(errorMessage)
}

func RecoverFromPanic() {
	if err := recover(); err != nil {
		log.Println("=======================================")
		log.Println("tripfacts encountered an unexpected error, please report the issue.")
		log.Println(err)
		log.Println("=======================================")
		b := bufio.NewScanner(bytes.NewBuffer(debug.Stack()))
		for b.Scan() {
			log.Println(b.Text())
		}
		os.Exit(1)
	}
}
