package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vars    []string
		want    map[string]any
		wantErr string
	}{
		{
			name: "nested keys",
			vars: []string{"workers=8", "fact_table.postgres.host=db", "fact_table.name=a.b"},
			want: map[string]any{
				"workers": "8",
				"fact_table": map[string]any{
					"name":     "a.b",
					"postgres": map[string]any{"host": "db"},
				},
			},
		},
		{
			name: "value may contain equals signs",
			vars: []string{"fact_table.postgres.password=a=b"},
			want: map[string]any{"fact_table": map[string]any{"postgres": map[string]any{"password": "a=b"}}},
		},
		{
			name:    "missing value",
			vars:    []string{"workers"},
			wantErr: "invalid variable 'workers', expected key=value",
		},
		{
			name:    "duplicate key",
			vars:    []string{"workers=1", "workers=2"},
			wantErr: "variable 'workers' is given more than once",
		},
		{
			name:    "scalar and nested key clash",
			vars:    []string{"fact_table=x", "fact_table.name=y"},
			wantErr: "variable 'fact_table.name' conflicts with 'fact_table'",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseVars(tt.vars)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_ApplyOverrides(t *testing.T) {
	t.Parallel()

	config, err := LoadFromFile(writeConfig(t, simpleConfig), "/project/.tripfacts.yml")
	require.NoError(t, err)
	require.NoError(t, config.SelectEnvironment("prod"))

	err = config.ApplyOverrides([]string{
		"fact_table.postgres.host=replica.internal",
		"fact_table.postgres.port=6432",
		"workers=2",
		"families.green.passthrough=cbd_congestion_fee,extra_fee",
	})
	require.NoError(t, err)

	env := config.SelectedEnvironment
	assert.Equal(t, "replica.internal", env.FactTable.Postgres.Host)
	assert.Equal(t, 6432, env.FactTable.Postgres.Port)
	assert.Equal(t, "loader", env.FactTable.Postgres.Username)
	assert.Equal(t, 2, env.Workers)
	assert.Equal(t, []string{"cbd_congestion_fee", "extra_fee"}, env.Families["green"].Passthrough)

	// the loaded environment is left untouched
	assert.Equal(t, "db.internal", config.Environments["prod"].FactTable.Postgres.Host)
}

func TestConfig_ApplyOverrides_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vars    []string
		wantErr string
	}{
		{name: "unknown key", vars: []string{"fact_table.table=x"}, wantErr: "failed to apply variables"},
		{name: "wrong type", vars: []string{"workers=many"}, wantErr: "failed to apply variables"},
		{name: "fails validation", vars: []string{"fact_table.type=sqlite"}, wantErr: "invalid configuration after applying variables"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config, err := LoadFromFile(writeConfig(t, simpleConfig), "/project/.tripfacts.yml")
			require.NoError(t, err)

			before := *config.SelectedEnvironment
			err = config.ApplyOverrides(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, before, *config.SelectedEnvironment)
		})
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	schema, err := Schema()
	require.NoError(t, err)

	s := string(schema)
	assert.Contains(t, s, `"default_environment"`)
	assert.Contains(t, s, `"fact_table"`)
	assert.Contains(t, s, `"path_template"`)
	assert.Contains(t, s, `"use_application_default_credentials"`)
	assert.NotContains(t, s, "SelectedEnvironment")
}
