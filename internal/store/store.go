// Package store persists users, projects, memberships and boards in a SQL
// database. Postgres is used in production; an embedded SQLite database
// serves development and tests.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

type Store struct {
	db      *sql.DB
	dialect goose.Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect goose.Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Open connects to the database named by dsn. postgres:// URLs use pgx;
// anything else is treated as a SQLite path (":memory:" included).
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, dialect := resolveDSN(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if dialect == goose.DialectSQLite3 {
		// one writer; also keeps a :memory: database alive on a single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return New(db, dialect), nil
}

func resolveDSN(dsn string) (driver, source string, dialect goose.Dialect) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", dsn, goose.DialectPostgres
	}
	source = dsn
	if source == ":memory:" || source == "" {
		source = "file::memory:"
	}
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	source += sep + "_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	return "sqlite", source, goose.DialectSQLite3
}

// WithClock replaces the time source used for created_at stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate applies every pending embedded migration for the store's dialect.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	dir := "migrations/postgres"
	if s.dialect == goose.DialectSQLite3 {
		dir = "migrations/sqlite"
	}
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(s.dialect, s.db, fsys)
	if err != nil {
		return 0, fmt.Errorf("migrations: %w", err)
	}
	res, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	return len(res), nil
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func rollback(tx *sql.Tx) { _ = tx.Rollback() }
