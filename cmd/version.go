package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
	OS      string `json:"os"`
}

func VersionCmd(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the tripfacts version",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
			},
		},
		Action: func(c *cli.Context) error {
			info := VersionInfo{
				Version: c.App.Version,
				Commit:  commit,
				Go:      runtime.Version(),
				OS:      runtime.GOOS + "/" + runtime.GOARCH,
			}
			return printVersion(c.App.Writer, info, c.String("output"))
		},
	}
}

func printVersion(w io.Writer, info VersionInfo, output string) error {
	if output == "json" {
		encoded, err := json.Marshal(info)
		if err != nil {
			return errors.Wrap(err, "failed to marshal the output")
		}
		_, err = fmt.Fprintln(w, string(encoded))
		return err
	}

	commit := info.Commit
	if commit == "" {
		commit = "unknown commit"
	}
	_, err := fmt.Fprintf(w, "tripfacts %s (%s)\n%s on %s\n", info.Version, commit, info.Go, info.OS)
	return err
}
