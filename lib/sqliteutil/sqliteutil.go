package sqliteutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Memory is the target used for a throwaway in-process database.
const Memory = ":memory:"

// IsRemote reports whether target names a libsql server rather than a local file.
func IsRemote(target string) bool {
	return strings.HasPrefix(target, "libsql://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "http://")
}

// OpenDB opens target and applies schema to it.
//
// target is either a libsql url (an auth token can be given with authToken), a file path
// or Memory. Local files are created if they do not exist yet.
func OpenDB(ctx context.Context, target, authToken, schema string) (*sql.DB, error) {
	if target == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}

	var db *sql.DB
	var err error
	if IsRemote(target) {
		db, err = openRemote(target, authToken)
	} else {
		db, err = openLocal(ctx, target)
	}
	if err != nil {
		return nil, err
	}

	if schema != "" {
		_, err = db.ExecContext(ctx, schema)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}

func openRemote(target, authToken string) (*sql.DB, error) {
	dsn := target
	if authToken != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = fmt.Sprintf("%s%sauthToken=%s", dsn, sep, authToken)
	}
	return sql.Open("libsql", dsn)
}

func openLocal(ctx context.Context, target string) (*sql.DB, error) {
	if target != Memory {
		err := os.MkdirAll(filepath.Dir(target), 0755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", target)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer, a memory database also only lives as long as
	// its connection
	db.SetMaxOpenConns(1)
	if target != Memory {
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
