package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/querysql"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// PoolConfig holds the connection pool knobs.
type PoolConfig struct {
	MaxActive       int           `yaml:"max_active"`
	MaxIdle         int           `yaml:"max_idle"`
	CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
}

// DefaultPoolConfig returns 10 active, 10 idle, 20s checkout and 20s wait.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxActive:       10,
		MaxIdle:         10,
		CheckoutTimeout: 20 * time.Second,
		WaitTimeout:     20 * time.Second,
	}
}

// Config selects and configures the backend.
type Config struct {
	Driver Driver
	DSN    string
	Pool   PoolConfig
}

// Backend is the storage abstraction the engine depends on.
type Backend interface {
	// Update runs fn in a read-write transaction. If fn returns an error the
	// transaction is rolled back and the error returned unchanged.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn in a transaction that is never committed.
	View(ctx context.Context, fn func(Tx) error) error

	Close() error
}

// dialect captures the per-driver differences.
type dialect struct {
	driver     Driver
	sqlDriver  string
	schema     string
	query      querysql.Dialect
	beginHooks func(wait time.Duration) []string
}

var dialects = map[Driver]dialect{
	DriverSQLite: {
		driver:    DriverSQLite,
		sqlDriver: "sqlite3",
		schema:    sqliteSchema,
		query:     querysql.SQLite,
	},
	DriverPostgres: {
		driver:    DriverPostgres,
		sqlDriver: "pgx",
		schema:    postgresSchema,
		query:     querysql.Postgres,
		beginHooks: func(wait time.Duration) []string {
			if wait <= 0 {
				return nil
			}
			return []string{fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())}
		},
	},
}

// Store is the database/sql implementation of Backend.
type Store struct {
	db      *sql.DB
	reader  *sql.DB // SQLite only: deferred transactions for View
	dialect dialect
	pool    PoolConfig
}

// Open connects to the configured database, applies pool settings and
// creates or migrates the schema. It is idempotent.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s: dsn is required", cfg.Driver)
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		var err error
		if dsn, err = sqliteDSN(cfg.DSN, cfg.Pool.WaitTimeout); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Pool.MaxActive)
	db.SetMaxIdleConns(cfg.Pool.MaxIdle)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, dialect: d, pool: cfg.Pool}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		if s.reader, err = openSQLiteReader(ctx, dsn, cfg.Pool); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// openSQLiteReader opens the handle View uses. Its transactions begin
// DEFERRED, so in WAL mode reads proceed while a writer holds the lock.
func openSQLiteReader(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	readDSN, err := sqliteReadDSN(dsn)
	if err != nil {
		return nil, err
	}
	reader, err := sql.Open("sqlite3", readDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open read handle: %w", err)
	}
	reader.SetMaxOpenConns(pool.MaxActive)
	reader.SetMaxIdleConns(pool.MaxIdle)
	if err := reader.PingContext(ctx); err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to connect read handle: %w", err)
	}
	return reader, nil
}

// OpenSQLite opens a SQLite database file with the default pool settings.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, Config{Driver: DriverSQLite, DSN: path, Pool: DefaultPoolConfig()})
}

// sqliteDSN adds the connection parameters procflow relies on unless the
// caller already set them:
//   - _txlock=immediate: writers take the lock at BEGIN
//   - _busy_timeout: wait for locks up to the pool wait timeout
//   - _journal_mode=WAL: concurrent reads during writes
//   - _foreign_keys=on: enforce referential integrity
//   - _synchronous=NORMAL: balance durability/performance
func sqliteDSN(dsn string, wait time.Duration) (string, error) {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse sqlite dsn: %w", err)
	}

	if wait <= 0 {
		wait = 5 * time.Second
	}
	defaults := map[string]string{
		"_txlock":       "immediate",
		"_busy_timeout": strconv.FormatInt(wait.Milliseconds(), 10),
		"_journal_mode": "WAL",
		"_foreign_keys": "on",
		"_synchronous":  "NORMAL",
	}
	for k, v := range defaults {
		if params.Get(k) == "" {
			params.Set(k, v)
		}
	}
	return path + "?" + params.Encode(), nil
}

// sqliteReadDSN rewrites a DSN built by sqliteDSN for read transactions.
func sqliteReadDSN(dsn string) (string, error) {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse sqlite dsn: %w", err)
	}
	params.Set("_txlock", "deferred")
	return path + "?" + params.Encode(), nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	var err error
	if s.reader != nil {
		err = multierr.Append(err, s.reader.Close())
	}
	if s.db != nil {
		err = multierr.Append(err, s.db.Close())
	}
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Update and View.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the backend driver in use.
func (s *Store) Driver() Driver {
	return s.dialect.driver
}

// Update implements Backend.
func (s *Store) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, s.db, true, fn)
}

// View implements Backend.
func (s *Store) View(ctx context.Context, fn func(Tx) error) error {
	db := s.db
	if s.reader != nil {
		db = s.reader
	}
	return s.run(ctx, db, false, fn)
}

func (s *Store) run(ctx context.Context, db *sql.DB, commit bool, fn func(Tx) error) (err error) {
	waitCtx, cancelWait := withTimeout(ctx, s.pool.WaitTimeout)
	conn, err := db.Conn(waitCtx)
	cancelWait()
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	txCtx, cancel := withTimeout(ctx, s.pool.CheckoutTimeout)
	defer cancel()

	sqlTx, err := conn.BeginTx(txCtx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if s.dialect.beginHooks != nil {
		for _, stmt := range s.dialect.beginHooks(s.pool.WaitTimeout) {
			if _, err := sqlTx.ExecContext(txCtx, stmt); err != nil {
				sqlTx.Rollback()
				return fmt.Errorf("configure transaction: %w", err)
			}
		}
	}

	t := &tx{
		tx:      sqlTx,
		queries: querysql.NewCompiler(s.dialect.query),
	}
	if err := fn(t); err != nil {
		sqlTx.Rollback()
		return err
	}

	if !commit {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// applySchema creates tables if they don't exist and records the version.
func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	switch {
	case !version.Valid:
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", ir.SchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	case version.Int64 > ir.SchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version.Int64, ir.SchemaVersion)
	}

	return nil
}

// SchemaVersion returns the version recorded in schema_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// notFound converts sql.ErrNoRows into an ir NotFound error.
func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NotFound(entity, id)
	}
	return fmt.Errorf("read %s %s: %w", entity, id, err)
}
