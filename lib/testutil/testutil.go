package testutil

import (
	"context"
	"database/sql"
	"testing"

	"mmls-attendance/lib/sqliteutil"
)

type DBParams struct {
	Schema string
	// if unspecified, it will use `:memory:`
	Path string
}

// SetupDB opens a database with the schema applied, it is closed when the test ends.
func SetupDB(t testing.TB, params DBParams) *sql.DB {
	t.Helper()

	path := params.Path
	if path == "" {
		path = sqliteutil.Memory
	}
	conn, err := sqliteutil.OpenDB(context.Background(), path, "", params.Schema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}
