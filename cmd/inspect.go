package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func Inspect(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "show the columns and the per-day row counts of the fact table",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "override a config value of the selected environment",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
			},
			environmentFlag(),
			configFileFlag(),
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			output := strings.ToLower(c.String("output"))
			log := makeLogger(*isDebug)

			cm, err := loadEnvironment(c)
			if err != nil {
				printError(err, output, "")
				return cli.Exit("", 1)
			}

			store, closeStore, err := newFactStore(c.Context, cm.SelectedEnvironment.FactTable)
			if err != nil {
				printError(err, output, "Failed to connect to the fact table")
				return cli.Exit("", 1)
			}
			defer closeStore()

			log.Debugf("inspecting '%s'", store.Name())
			info, err := fact.Inspect(c.Context, store)
			if err != nil {
				printError(err, output, "")
				return cli.Exit("", 1)
			}

			if output == "json" {
				return printTableInfoJSON(os.Stdout, info)
			}

			renderTableInfo(os.Stdout, info)
			return nil
		},
	}
}

func renderTableInfo(w io.Writer, info *fact.TableInfo) {
	if !info.Exists {
		_, _ = warningPrinter.Fprintf(w, "The fact table '%s' does not exist yet.\n", info.Table)
		return
	}

	_, _ = infoPrinter.Fprintf(w, "Table: %s\n\n", info.Table)

	columns := table.NewWriter()
	columns.SetOutputMirror(w)
	columns.AppendHeader(table.Row{"#", "Column", "Type"})
	for i, c := range info.Schema {
		columns.AppendRow(table.Row{i + 1, c.Name, string(c.Type)})
	}
	columns.Render()
	fmt.Fprintln(w)

	partitions := table.NewWriter()
	partitions.SetOutputMirror(w)
	partitions.AppendHeader(table.Row{"Dropoff date", "Trips"})
	for _, p := range info.Partitions {
		partitions.AppendRow(table.Row{p.Date.Format(time.DateOnly), p.Rows})
	}
	partitions.AppendFooter(table.Row{fmt.Sprintf("%d partitions", len(info.Partitions)), info.Rows})
	partitions.Render()
}

type tableInfoJSON struct {
	Table      string          `json:"table"`
	Exists     bool            `json:"exists"`
	Columns    []columnJSON    `json:"columns"`
	Partitions []partitionJSON `json:"partitions"`
	Rows       int64           `json:"rows"`
}

type columnJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type partitionJSON struct {
	Date string `json:"date"`
	Rows int64  `json:"rows"`
}

func printTableInfoJSON(w io.Writer, info *fact.TableInfo) error {
	out := tableInfoJSON{
		Table:  info.Table,
		Exists: info.Exists,
		Rows:   info.Rows,
		Columns: lo.Map(info.Schema, func(c fact.Column, _ int) columnJSON {
			return columnJSON{Name: c.Name, Type: string(c.Type)}
		}),
		Partitions: lo.Map(info.Partitions, func(p fact.PartitionCount, _ int) partitionJSON {
			return partitionJSON{Date: p.Date.Format(time.DateOnly), Rows: p.Rows}
		}),
	}

	js, err := json.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "failed to marshal the table info")
	}

	_, err = fmt.Fprintln(w, string(js))
	return err
}
