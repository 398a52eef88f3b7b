package config

import (
	"bufio"
	"bytes"
	"fmt"
	fs2 "io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	path2 "github.com/bruin-data/tripfacts/pkg/path"
	"github.com/bruin-data/tripfacts/pkg/staging"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const DefaultEnvironmentName = "default"

type Staging struct {
	// PathTemplate accepts {family}, {year} and {month}.
	PathTemplate string `yaml:"path_template,omitempty"`
}

type Reference struct {
	Zones         string           `yaml:"zones,omitempty"`
	PaymentTypes  string           `yaml:"payment_types,omitempty"`
	Vendors       map[int64]string `yaml:"vendors,omitempty"`
	UnknownVendor string           `yaml:"unknown_vendor,omitempty"`
}

type FamilyOptions struct {
	Passthrough []string `yaml:"passthrough,omitempty" validate:"dive,required"`
}

type Environment struct {
	FactTable FactTable                `yaml:"fact_table" jsonschema:"required"`
	Staging   Staging                  `yaml:"staging,omitempty"`
	Reference Reference                `yaml:"reference,omitempty"`
	Families  map[string]FamilyOptions `yaml:"families,omitempty" validate:"dive,keys,oneof=yellow green,endkeys"`
	Workers   int                      `yaml:"workers,omitempty" validate:"gte=0"`
}

// StagedPath renders the staged file location for one family and month.
func (e *Environment) StagedPath(family trip.Family, year int, month time.Month) string {
	return staging.Path(e.Staging.PathTemplate, family, year, month)
}

// FamilySpecs returns the built-in family specs extended with the configured passthrough
// columns.
func (e *Environment) FamilySpecs() []trip.FamilySpec {
	specs := trip.DefaultSpecs()
	for i, spec := range specs {
		if opts, ok := e.Families[string(spec.Family)]; ok && len(opts.Passthrough) > 0 {
			specs[i] = spec.WithPassthrough(opts.Passthrough...)
		}
	}
	return specs
}

func (e Environment) clone() Environment {
	out := e
	if e.FactTable.DuckDB != nil {
		c := *e.FactTable.DuckDB
		out.FactTable.DuckDB = &c
	}
	if e.FactTable.Postgres != nil {
		c := *e.FactTable.Postgres
		out.FactTable.Postgres = &c
	}
	if e.FactTable.BigQuery != nil {
		c := *e.FactTable.BigQuery
		out.FactTable.BigQuery = &c
	}
	if e.Reference.Vendors != nil {
		out.Reference.Vendors = make(map[int64]string, len(e.Reference.Vendors))
		for k, v := range e.Reference.Vendors {
			out.Reference.Vendors[k] = v
		}
	}
	if e.Families != nil {
		out.Families = make(map[string]FamilyOptions, len(e.Families))
		for k, v := range e.Families {
			out.Families[k] = FamilyOptions{Passthrough: append([]string{}, v.Passthrough...)}
		}
	}
	return out
}

type Config struct {
	fs   afero.Fs
	path string

	DefaultEnvironmentName  string                 `yaml:"default_environment"`
	SelectedEnvironmentName string                 `yaml:"-"`
	SelectedEnvironment     *Environment           `yaml:"-"`
	Environments            map[string]Environment `yaml:"environments" validate:"required,min=1,dive" jsonschema:"required"`
}

func (c *Config) Persist() error {
	return path2.WriteYaml(c.fs, c.path, c)
}

func (c *Config) Path() string {
	return c.path
}

// EnvironmentNames returns the configured environment names, sorted.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelectEnvironment switches to the named environment. An empty name selects the default one.
func (c *Config) SelectEnvironment(name string) error {
	if name == "" {
		name = c.DefaultEnvironmentName
	}

	e, ok := c.Environments[name]
	if !ok {
		return fmt.Errorf("environment '%s' not found in the configuration file, available environments: %s", name, strings.Join(c.EnvironmentNames(), ", "))
	}

	c.SelectedEnvironment = &e
	c.SelectedEnvironmentName = name
	return nil
}

func LoadFromFile(fs afero.Fs, path string) (*Config, error) {
	var config Config

	err := path2.ReadYaml(fs, path, &config)
	if err != nil {
		return nil, err
	}

	config.fs = fs
	config.path = path

	if config.DefaultEnvironmentName == "" {
		config.DefaultEnvironmentName = DefaultEnvironmentName
	}

	if err := config.SelectEnvironment(""); err != nil {
		return nil, errors.Wrap(err, "failed to select the default environment")
	}

	return &config, nil
}

// DefaultConfig writes the fact table into a local DuckDB file.
func DefaultConfig() Environment {
	return Environment{
		FactTable: FactTable{
			Type:   StoreDuckDB,
			Name:   DefaultFactTable,
			DuckDB: &DuckDBConnection{Path: "tripfacts.duckdb"},
		},
		Staging: Staging{PathTemplate: staging.DefaultPathTemplate},
	}
}

func LoadOrCreate(fs afero.Fs, path string) (*Config, error) {
	config, err := LoadFromFile(fs, path)
	if err != nil && !errors.Is(err, fs2.ErrNotExist) {
		return nil, err
	}

	if err == nil {
		return config, ensureConfigIsInGitignore(fs, path)
	}

	defaultEnv := DefaultConfig()
	config = &Config{
		fs:   fs,
		path: path,

		DefaultEnvironmentName:  DefaultEnvironmentName,
		SelectedEnvironment:     &defaultEnv,
		SelectedEnvironmentName: DefaultEnvironmentName,
		Environments: map[string]Environment{
			DefaultEnvironmentName: defaultEnv,
		},
	}

	err = config.Persist()
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist config")
	}

	return config, ensureConfigIsInGitignore(fs, path)
}

// the config file carries credentials, keep it out of version control
func ensureConfigIsInGitignore(fs afero.Fs, filePath string) (err error) {
	gitignorePath := path.Join(path.Dir(filePath), ".gitignore")
	exists, err := afero.Exists(fs, gitignorePath)
	if err != nil {
		return err
	}

	fileNameToIgnore := path.Base(filePath)
	if !exists {
		return afero.WriteFile(fs, gitignorePath, []byte(fileNameToIgnore), 0o644)
	}

	content, err := afero.ReadFile(fs, gitignorePath)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == fileNameToIgnore {
			return nil
		}
	}

	file, err := fs.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func(open afero.File) {
		tempErr := open.Close()
		if tempErr != nil && err == nil {
			err = errors.Wrap(tempErr, "failed to close file")
		}
	}(file)

	_, err = file.Write([]byte("\n" + fileNameToIgnore))
	return err
}
