package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Options selects and configures the backing store.
type Options struct {
	Driver string // "mysql" or "sqlite"

	// MySQL connection parts.
	User, Pass, Host, Port, Name string

	// SQLitePath is a file path or ":memory:".
	SQLitePath string
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, opts Options) (*sqlx.DB, error) {
	switch opts.Driver {
	case DriverMySQL, "":
		return openMySQL(ctx, opts)
	case DriverSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
}

// MySQLDSN builds a go-sql-driver DSN.  Timestamps are stored as epoch
// millis so parseTime is not needed; loc=UTC keeps NOW() consistent.
func MySQLDSN(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&loc=UTC&multiStatements=false",
		auth, host, port, name)
}

func openMySQL(ctx context.Context, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverMySQL, MySQLDSN(opts.User, opts.Pass, opts.Host, opts.Port, opts.Name))
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens an embedded database.  A single connection is used:
// SQLite serializes writers anyway, and an in-memory database only lives
// as long as its connection.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
