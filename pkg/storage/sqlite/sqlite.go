// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/storage/sqldriver"
)

// busyTimeoutMillis is how long a connection waits on a locked database.
const busyTimeoutMillis = 5000

// SQLiteDriver implements storage.Driver using SQLite via the sql driver.
type SQLiteDriver struct {
	*sqldriver.Driver
}

// NewSQLiteDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(ctx context.Context, dbPath string, b *fault.Builder) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// alive for the lifetime of the driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	drv, err := sqldriver.New(ctx, db, dialect.SQLite, b)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{Driver: drv}, nil
}

// dsn adds the pragmas the driver depends on: foreign keys, a busy timeout,
// and BEGIN IMMEDIATE transactions so sequence updates never upgrade locks.
func dsn(dbPath string) string {
	params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", busyTimeoutMillis)

	if !strings.HasPrefix(dbPath, "file:") {
		dbPath = "file:" + dbPath
	}
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + params
	}

	return dbPath + "?" + params
}
