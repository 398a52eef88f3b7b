package bigquery

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var scopes = []string{
	bigquery.Scope,
	"https://www.googleapis.com/auth/cloud-platform",
}

// jobLabels are attached to every query so the merge jobs can be found in the job history.
var jobLabels = map[string]string{"app": "tripfacts"}

// Client talks to BigQuery on behalf of the fact store. The underlying API client is
// created on first use, which lets commands that never reach BigQuery run without
// credentials.
type Client struct {
	config *Config

	mu     sync.Mutex
	client *bigquery.Client
}

func NewDB(c *Config) (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Client{config: c}, nil
}

func (d *Client) ProjectID() string {
	return d.config.ProjectID
}

// api returns the underlying client, connecting if needed.
func (d *Client) api(ctx context.Context) (*bigquery.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	opts, err := d.credentials(ctx)
	if err != nil {
		return nil, err
	}

	client, err := bigquery.NewClient(ctx, d.config.ProjectID, append(opts, option.WithScopes(scopes...))...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create bigquery client for project '%s'", d.config.ProjectID)
	}
	client.Location = d.config.GetLocation()

	d.client = client
	return client, nil
}

func (d *Client) credentials(ctx context.Context) ([]option.ClientOption, error) {
	switch {
	case d.config.Credentials != nil:
		return []option.ClientOption{option.WithCredentials(d.config.Credentials)}, nil
	case d.config.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(d.config.CredentialsJSON))}, nil
	case d.config.CredentialsFilePath != "":
		return []option.ClientOption{option.WithCredentialsFile(d.config.CredentialsFilePath)}, nil
	case d.config.UseApplicationDefaultCredentials:
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, &CredentialsError{Err: err}
		}
		return []option.ClientOption{option.WithCredentials(creds)}, nil
	}

	return nil, errors.New("no credentials provided")
}

func (d *Client) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// Select runs a query, possibly a multi-statement script, and returns the rows of its
// last statement.
func (d *Client) Select(ctx context.Context, sql string) ([][]bigquery.Value, error) {
	client, err := d.api(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(sql)
	q.Labels = jobLabels

	it, err := q.Read(ctx)
	if err != nil {
		return nil, formatError(err)
	}

	rows := make([][]bigquery.Value, 0, it.TotalRows)
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return rows, nil
		}
		if err != nil {
			return nil, formatError(err)
		}
		rows = append(rows, row)
	}
}

// formatError drops the request details googleapi puts around client errors, the
// message alone tells what went wrong with the query.
func formatError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusBadRequest {
		return errors.New(apiErr.Message)
	}

	return apiErr
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CredentialsError is returned when application default credentials are requested but
// none are configured on the machine.
type CredentialsError struct {
	Err error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("application default credentials not found for bigquery: %v\n"+
		"Run: gcloud auth application-default login", e.Err)
}

func (e *CredentialsError) Unwrap() error {
	return e.Err
}
