package configuration

import (
	"context"
	"database/sql"
	"errors"

	"mmls-attendance/lib/sqliteutil"
)

// Libsql points at a database, either a local sqlite file or a remote libsql server.
type Libsql struct {
	// File is a local database, ":memory:" for one that lives as long as the process.
	File string `json:"file"`
	// Url is a remote database (libsql://, http:// or https://), it takes precedence over File.
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Libsql) Target() string {
	if config.Url != "" {
		return config.Url
	}
	return config.File
}

// OpenDB opens the database and applies schema.
func (config Libsql) OpenDB(ctx context.Context, schema string) (*sql.DB, error) {
	if config.Target() == "" {
		return nil, errors.New("neither a file nor a url was specified")
	}
	return sqliteutil.OpenDB(ctx, config.Target(), config.AuthToken, schema)
}
