package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bigquery2 "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
)

// fakeWarehouse answers the query endpoints of the BigQuery API with canned results and
// records every query it receives.
type fakeWarehouse struct {
	t *testing.T

	mu      sync.Mutex
	queries []string
	// tableExists controls the answer to the fact table metadata lookup.
	tableExists bool
	submitError *bigquery2.ErrorProto
	submitCode  int
	results     func(query string) *bigquery2.GetQueryResultsResponse
}

func (f *fakeWarehouse) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/projects/test-project/datasets/trips/tables/fact_trips"):
		if !f.tableExists {
			notFound(f.t, w)
			return
		}
		writeJSON(f.t, w, http.StatusOK, &bigquery2.Table{
			TableReference: &bigquery2.TableReference{ProjectId: testProjectID, DatasetId: "trips", TableId: "fact_trips"},
			Schema: &bigquery2.TableSchema{Fields: []*bigquery2.TableFieldSchema{
				{Name: "trip_id", Type: "STRING"},
				{Name: "dropoff_date", Type: "DATE"},
			}},
		})

	case r.Method == http.MethodPost && strings.HasSuffix(path, fmt.Sprintf("/projects/%s/queries", testProjectID)):
		var req bigquery2.QueryRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.queries = append(f.queries, req.Query)
		jobID := fmt.Sprintf("job-%d", len(f.queries))
		f.mu.Unlock()

		if f.submitError != nil {
			writeJSON(f.t, w, f.submitCode, map[string]any{
				"error": map[string]any{"code": f.submitCode, "message": f.submitError.Message},
			})
			return
		}

		writeJSON(f.t, w, http.StatusOK, &bigquery2.Job{
			JobReference: &bigquery2.JobReference{JobId: jobID, ProjectId: testProjectID},
			Status:       &bigquery2.JobStatus{State: "DONE"},
		})

	case r.Method == http.MethodGet && strings.Contains(path, fmt.Sprintf("/projects/%s/queries/job-", testProjectID)):
		f.mu.Lock()
		query := f.queries[len(f.queries)-1]
		f.mu.Unlock()

		res := f.results(query)
		res.JobComplete = true
		res.JobReference = &bigquery2.JobReference{JobId: path[strings.LastIndex(path, "/")+1:], ProjectId: testProjectID}
		writeJSON(f.t, w, http.StatusOK, res)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.RequestURI())
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (f *fakeWarehouse) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.queries...)
}

func resultRows(fields []*bigquery2.TableFieldSchema, rows ...[]string) *bigquery2.GetQueryResultsResponse {
	res := &bigquery2.GetQueryResultsResponse{Schema: &bigquery2.TableSchema{Fields: fields}}
	for _, r := range rows {
		row := &bigquery2.TableRow{}
		for _, v := range r {
			row.F = append(row.F, &bigquery2.TableCell{V: v})
		}
		res.Rows = append(res.Rows, row)
	}
	res.TotalRows = uint64(len(rows))
	return res
}

func TestDB_Select(t *testing.T) {
	t.Parallel()

	tripFields := []*bigquery2.TableFieldSchema{
		{Name: "trip_id", Type: "STRING"},
		{Name: "passenger_count", Type: "INTEGER"},
		{Name: "fare_amount", Type: "FLOAT"},
	}

	tests := []struct {
		name        string
		submitError string
		submitCode  int
		rows        [][]string
		want        [][]bigquery.Value
		wantErr     string
	}{
		{
			name:        "invalid query",
			submitError: `Syntax error: Expected keyword SELECT but got identifier "sselect" at [1:1]`,
			submitCode:  http.StatusBadRequest,
			wantErr:     `Syntax error: Expected keyword SELECT but got identifier "sselect" at [1:1]`,
		},
		{
			name:        "missing table",
			submitError: "Not found: Table test-project:trips.fact_trips was not found in location US",
			submitCode:  http.StatusNotFound,
			wantErr:     "Not found: Table test-project:trips.fact_trips was not found in location US",
		},
		{
			name: "trips",
			rows: [][]string{
				{"5b2c1f0e9d8a7b6c5d4e3f2a1b0c9d8e", "1", "11.5"},
				{"0f1e2d3c4b5a69788796a5b4c3d2e1f0", "3", "52"},
			},
			want: [][]bigquery.Value{
				{"5b2c1f0e9d8a7b6c5d4e3f2a1b0c9d8e", int64(1), 11.5},
				{"0f1e2d3c4b5a69788796a5b4c3d2e1f0", int64(3), float64(52)},
			},
		},
		{
			name: "no rows",
			want: [][]bigquery.Value{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeWarehouse{
				t:          t,
				submitCode: tt.submitCode,
				results: func(string) *bigquery2.GetQueryResultsResponse {
					return resultRows(tripFields, tt.rows...)
				},
			}
			if tt.submitError != "" {
				fake.submitError = &bigquery2.ErrorProto{Message: tt.submitError}
			}

			d := newTestClient(t, fake.handle)
			got, err := d.Select(context.Background(), "SELECT trip_id, passenger_count, fare_amount FROM trips.fact_trips")
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"SELECT trip_id, passenger_count, fare_amount FROM trips.fact_trips"}, fake.Queries())
		})
	}
}

func TestFactStore_PartitionCounts(t *testing.T) {
	t.Parallel()

	fake := &fakeWarehouse{
		t:           t,
		tableExists: true,
		results: func(string) *bigquery2.GetQueryResultsResponse {
			return resultRows([]*bigquery2.TableFieldSchema{
				{Name: "f0_", Type: "STRING"},
				{Name: "f1_", Type: "INTEGER"},
			}, []string{"2024-01-15", "12"}, []string{"2024-01-16", "3"})
		},
	}

	s, err := NewFactStore(newTestClient(t, fake.handle), "trips.fact_trips")
	require.NoError(t, err)

	got, err := s.PartitionCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []fact.PartitionCount{
		{Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Rows: 12},
		{Date: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), Rows: 3},
	}, got)
	assert.Equal(t, []string{
		"SELECT CAST(`dropoff_date` AS STRING), COUNT(*) FROM `test-project`.`trips`.`fact_trips` GROUP BY 1 ORDER BY 1",
	}, fake.Queries())
}

func TestFactStore_Exists(t *testing.T) {
	t.Parallel()

	fake := &fakeWarehouse{
		t:           t,
		tableExists: true,
		results: func(string) *bigquery2.GetQueryResultsResponse {
			return resultRows([]*bigquery2.TableFieldSchema{{Name: "trip_id", Type: "STRING"}}, []string{"bbbb"})
		},
	}

	s, err := NewFactStore(newTestClient(t, fake.handle), "trips.fact_trips")
	require.NoError(t, err)

	got, err := s.Exists(context.Background(), []string{"aaaa", "bbbb"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"bbbb": true}, got)
	assert.Equal(t, []string{
		"SELECT `trip_id` FROM `test-project`.`trips`.`fact_trips` WHERE `trip_id` IN ('aaaa', 'bbbb')",
	}, fake.Queries())
}

func TestFactStore_MissingTableIsEmpty(t *testing.T) {
	t.Parallel()

	fake := &fakeWarehouse{t: t}
	s, err := NewFactStore(newTestClient(t, fake.handle), "trips.fact_trips")
	require.NoError(t, err)

	counts, err := s.PartitionCounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)

	found, err := s.Exists(context.Background(), []string{"aaaa"})
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.Empty(t, fake.Queries())
}

func TestNewDB(t *testing.T) {
	t.Parallel()

	_, err := NewDB(&Config{CredentialsFilePath: "creds.json"})
	require.EqualError(t, err, "bigquery project id is required")

	// the credentials file is only read on first use
	d, err := NewDB(&Config{ProjectID: testProjectID, CredentialsFilePath: "/does/not/exist.json"})
	require.NoError(t, err)
	assert.Equal(t, testProjectID, d.ProjectID())
	require.NoError(t, d.Close())
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	plain := errors.New("context deadline exceeded")
	assert.Equal(t, plain, formatError(plain))

	badRequest := &googleapi.Error{Code: http.StatusBadRequest, Message: "Unrecognized name: dropof_date at [1:8]"}
	require.EqualError(t, formatError(errors.Wrap(badRequest, "query failed")), "Unrecognized name: dropof_date at [1:8]")

	forbidden := &googleapi.Error{Code: http.StatusForbidden, Message: "Access Denied"}
	assert.Equal(t, forbidden, formatError(forbidden))

	assert.True(t, hasStatus(errors.Wrap(&googleapi.Error{Code: http.StatusConflict}, "create"), http.StatusConflict))
	assert.False(t, hasStatus(forbidden, http.StatusNotFound))
}

func TestCredentialsError(t *testing.T) {
	t.Parallel()

	cause := errors.New("could not find default credentials")
	err := error(&CredentialsError{Err: cause})

	assert.Contains(t, err.Error(), "gcloud auth application-default login")
	assert.ErrorIs(t, err, cause)
}
