package bigquery

import (
	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
)

const defaultLocation = "US"

type Config struct {
	ProjectID                        string
	CredentialsFilePath              string
	CredentialsJSON                  string
	Credentials                      *google.Credentials
	Location                         string
	UseApplicationDefaultCredentials bool
}

func (c Config) GetLocation() string {
	if c.Location == "" {
		return defaultLocation
	}
	return c.Location
}

// Validate reports whether the config names a project and exactly one way to authenticate.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("bigquery project id is required")
	}

	methods := 0
	for _, set := range []bool{c.CredentialsJSON != "", c.CredentialsFilePath != "", c.Credentials != nil, c.UseApplicationDefaultCredentials} {
		if set {
			methods++
		}
	}

	switch methods {
	case 0:
		return errors.New("no credentials provided, set a service account file or json, or enable application default credentials")
	case 1:
		return nil
	default:
		return errors.New("multiple credential sources provided, pick one")
	}
}
