package postgres

import (
	"net"
	"net/url"
	"strconv"
)

const defaultSslMode = "disable"

type Config struct {
	Username     string
	Password     string
	Host         string
	Port         int
	Database     string
	PoolMaxConns int
	SslMode      string
}

func (c Config) url() *url.URL {
	params := url.Values{}
	params.Set("sslmode", defaultSslMode)
	if c.SslMode != "" {
		params.Set("sslmode", c.SslMode)
	}
	if c.PoolMaxConns > 0 {
		params.Set("pool_max_conns", strconv.Itoa(c.PoolMaxConns))
	}

	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: params.Encode(),
	}
}

// ToDBConnectionURI returns the connection URI understood by pgxpool.
func (c Config) ToDBConnectionURI() string {
	return c.url().String()
}

// String returns the connection URI with the password masked.
func (c Config) String() string {
	return c.url().Redacted()
}
