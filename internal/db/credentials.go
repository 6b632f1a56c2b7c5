package db

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// CredentialsFunc returns database credentials with keys:
// host, port, dbname, username, password.
type CredentialsFunc func(ctx context.Context) (map[string]string, error)

// StaticDSN returns a DSNFunc for a fixed connection string.
func StaticDSN(dsn string) DSNFunc {
	return func(ctx context.Context) (string, error) {
		if dsn == "" {
			return "", eris.New("database url is empty")
		}
		return dsn, nil
	}
}

// DSNFromCredentials builds a connection string from a credentials map,
// typically an RDS secret.
func DSNFromCredentials(credsFn CredentialsFunc) DSNFunc {
	return func(ctx context.Context) (string, error) {
		creds, err := credsFn(ctx)
		if err != nil {
			return "", err
		}

		port := creds["port"]
		if port == "" {
			port = "5432"
		}
		dbname := creds["dbname"]
		if dbname == "" {
			dbname = creds["database"]
		}
		if dbname == "" {
			dbname = "postgres"
		}

		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(creds["username"], creds["password"]),
			Host:     fmt.Sprintf("%s:%s", creds["host"], port),
			Path:     "/" + dbname,
			RawQuery: "pool_max_conns=2&connect_timeout=10",
		}
		return u.String(), nil
	}
}
