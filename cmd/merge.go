package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/config"
	"github.com/bruin-data/tripfacts/pkg/date"
	duck "github.com/bruin-data/tripfacts/pkg/duckdb"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/loader"
	"github.com/bruin-data/tripfacts/pkg/logger"
	path2 "github.com/bruin-data/tripfacts/pkg/path"
	"github.com/bruin-data/tripfacts/pkg/staging"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func Merge(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "merge the staged trip files of a year into the fact table",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "year",
				Aliases:  []string{"y"},
				Usage:    "the year the staged files belong to",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "months",
				Aliases: []string{"m"},
				Usage:   "the months to load, either a range such as 1-6 or a list such as 01,02,03",
				Value:   "1-12",
			},
			&cli.StringSliceFlag{
				Name:  "family",
				Usage: "the trip families to load, all of them when not given",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "the number of months merged together as one batch",
				Value: 3,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "prepare every window and report what would change without writing to the fact table",
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "override a config value of the selected environment, e.g. --var workers=4",
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

			months, err := date.ParseMonths(c.String("months"))
			if err != nil {
				printError(err, output, "Invalid --months value")
				return cli.Exit("", 1)
			}

			families, err := parseFamilies(c.StringSlice("family"))
			if err != nil {
				printError(err, output, "Invalid --family value")
				return cli.Exit("", 1)
			}

			ld, closeAll, err := newLoader(c.Context, cm.SelectedEnvironment, log)
			if err != nil {
				printError(err, output, "Failed to set up the pipeline")
				return cli.Exit("", 1)
			}
			defer closeAll()

			stagingClient, err := duck.NewClient(duck.Config{})
			if err != nil {
				printError(err, output, "Failed to start the staging reader")
				return cli.Exit("", 1)
			}
			defer stagingClient.Close()

			m := &MergeCommand{
				env:      cm.SelectedEnvironment,
				families: families,
				dryRun:   c.Bool("dry-run"),
				logger:   log,
				open: func(family trip.Family, path string) staging.Source {
					return duck.NewFileSource(stagingClient, family, path)
				},
				exists: stagedFileExists,
				out:    os.Stderr,
			}

			if output != "json" {
				infoPrinter.Printf("Merging %s into %s\n", strings.Join(lo.Map(families, func(f trip.Family, _ int) string { return f.String() }), ", "), cm.SelectedEnvironment.FactTable.String())
			}

			windows := date.ChunkMonths(c.Int("year"), months, c.Int("chunk-size"))
			results, err := m.Run(c.Context, ld, windows)
			if err != nil {
				printError(err, output, "Merge failed")
				return cli.Exit("", 1)
			}

			if output == "json" {
				return printSummaryJSON(os.Stdout, results)
			}

			renderSummary(os.Stdout, results, m.dryRun)
			if !m.dryRun {
				successPrinter.Printf("\nMerged %d window(s) into %s.\n", len(results), results[0].Table)
			}
			return nil
		},
	}
}

// newLoader wires the pipeline for an environment. The returned function closes the fact
// store connections.
func newLoader(ctx context.Context, env *config.Environment, log logger.Logger) (*loader.Loader, func(), error) {
	reconciler, err := trip.NewReconciler(env.FamilySpecs()...)
	if err != nil {
		return nil, nil, err
	}

	enricher, err := newEnricher(fs, env.Reference)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := newFactStore(ctx, env.FactTable)
	if err != nil {
		return nil, nil, err
	}

	return loader.New(reconciler, enricher, fact.NewEngine(store, log), log, loader.WithWorkers(env.Workers)), closeStore, nil
}

func stagedFileExists(path string) bool {
	// remote locations are left to the reader
	if strings.Contains(path, "://") {
		return true
	}
	return path2.FileExists(fs, path)
}

type MergeCommand struct {
	env      *config.Environment
	families []trip.Family
	dryRun   bool
	logger   logger.Logger

	open   func(family trip.Family, path string) staging.Source
	exists func(path string) bool
	out    io.Writer
}

// Run merges the windows one after another. A window without any staged file is skipped,
// a run without any staged data at all fails.
func (m *MergeCommand) Run(ctx context.Context, ld *loader.Loader, windows []date.Window) ([]*loader.Result, error) {
	results := make([]*loader.Result, 0, len(windows))
	for _, window := range windows {
		sources := m.sources(window)
		if len(sources) == 0 {
			m.warnf("No staged files found for %s, skipping.\n", window)
			continue
		}

		start := time.Now()

		var res *loader.Result
		var err error
		if m.dryRun {
			res, err = ld.Preview(ctx, window, sources)
		} else {
			res, err = ld.Run(ctx, window, sources)
		}
		if err != nil {
			return results, errors.Wrapf(err, "window %s", window)
		}

		m.logger.Debugf("window %s took %s", window, time.Since(start).Round(time.Millisecond))
		results = append(results, res)
	}

	if len(results) == 0 {
		return nil, errors.Wrapf(loader.ErrNoSources, "no staged files found for %d window(s)", len(windows))
	}

	return results, nil
}

func (m *MergeCommand) sources(window date.Window) []staging.Source {
	sources := make([]staging.Source, 0, len(window.Months)*len(m.families))
	for _, month := range window.Months {
		for _, family := range m.families {
			path := m.env.StagedPath(family, window.Year, month)
			if !m.exists(path) {
				m.warnf("Skipping %s %04d-%02d, '%s' does not exist.\n", family, window.Year, int(month), path)
				continue
			}
			sources = append(sources, m.open(family, path))
		}
	}
	return sources
}

func (m *MergeCommand) warnf(format string, args ...interface{}) {
	if m.out == nil {
		return
	}
	_, _ = warningPrinter.Fprintf(m.out, format, args...)
}

func renderSummary(w io.Writer, results []*loader.Result, dryRun bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if dryRun {
		t.SetTitle("Dry run, nothing was written")
	}
	t.AppendHeader(table.Row{"Window", "Sources", "Observed", "Trips", "New", "Replaced", "Partitions", "Added columns"})

	var sources, observed, rows, inserted, replaced int
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Window.String(),
			r.Sources,
			r.Observed,
			r.Rows,
			r.Inserted,
			r.Replaced,
			len(r.Partitions),
			strings.Join(lo.Map(r.AddedColumns, func(c fact.Column, _ int) string { return c.Name }), ", "),
		})
		sources += r.Sources
		observed += r.Observed
		rows += r.Rows
		inserted += r.Inserted
		replaced += r.Replaced
	}
	t.AppendFooter(table.Row{"Total", sources, observed, rows, inserted, replaced, "", ""})
	t.Render()

	if len(results) > 0 {
		fmt.Fprintln(w, faint(fmt.Sprintf("fact table: %s", results[0].Table)))
	}
}

type windowSummary struct {
	RunID        string   `json:"run_id"`
	Window       string   `json:"window"`
	Table        string   `json:"table"`
	Sources      int      `json:"sources"`
	Observed     int      `json:"observed"`
	Trips        int      `json:"trips"`
	Inserted     int      `json:"inserted"`
	Replaced     int      `json:"replaced"`
	Created      bool     `json:"created"`
	AddedColumns []string `json:"added_columns"`
	Partitions   []string `json:"partitions"`
}

func printSummaryJSON(w io.Writer, results []*loader.Result) error {
	out := lo.Map(results, func(r *loader.Result, _ int) windowSummary {
		return windowSummary{
			RunID:        r.RunID,
			Window:       r.Window.String(),
			Table:        r.Table,
			Sources:      r.Sources,
			Observed:     r.Observed,
			Trips:        r.Rows,
			Inserted:     r.Inserted,
			Replaced:     r.Replaced,
			Created:      r.Created,
			AddedColumns: lo.Map(r.AddedColumns, func(c fact.Column, _ int) string { return c.Name }),
			Partitions:   lo.Map(r.Partitions, func(d time.Time, _ int) string { return d.Format(time.DateOnly) }),
		}
	})

	js, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal the summary")
	}

	_, err = fmt.Fprintln(w, string(js))
	return err
}
