package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/migrations"
	"collabchat/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Database is the SQL-backed message store. It also serves the user
// directory, group membership, contacts and device collaborators.
type Database struct {
	db        *sql.DB
	dialect   string
	encryptor *encryptor
	now       func() time.Time
}

// Option customizes a Database at construction time
type Option func(*options)

type options struct {
	encrypt bool
}

// WithEncryption enables at-rest encryption of device tokens and contact phones.
// The key is derived from COLLABCHAT_ENCRYPTION_SECRET.
func WithEncryption(enabled bool) Option {
	return func(o *options) { o.encrypt = enabled }
}

// New opens the store described by cfg and applies the schema
func New(ctx context.Context, cfg models.DatabaseConfig, opts ...Option) (*Database, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialect, driverName, dsn, err := resolveDriver(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseConnection, "failed to open database")
	}

	if dialect == constants.DialectSQLite {
		// a single writer avoids "database is locked" under concurrent sends
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(valueOr(cfg.MaxOpenConns, constants.DefaultDBMaxOpenConns))
		db.SetMaxIdleConns(valueOr(cfg.MaxIdleConns, constants.DefaultDBMaxIdleConns))
		db.SetConnMaxLifetime(time.Duration(constants.DefaultDBConnMaxLifetimeM) * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db, errors.WrapRetryable(err, errors.ErrCodeDatabaseConnection, "failed to ping database"))
	}

	schema, err := migrations.GetInitialSchema(dialect)
	if err != nil {
		return nil, closeWith(db, errors.Wrap(err, errors.ErrCodeDatabaseMigration, "failed to read schema"))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, closeWith(db, errors.Wrap(err, errors.ErrCodeDatabaseMigration, "failed to initialize schema"))
	}

	enc, err := NewEncryptor(o.encrypt)
	if err != nil {
		return nil, closeWith(db, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to initialize encryptor"))
	}

	return &Database{
		db:        db,
		dialect:   dialect,
		encryptor: enc,
		now:       func() time.Time { return time.Now() },
	}, nil
}

func resolveDriver(cfg models.DatabaseConfig) (dialect, driverName, dsn string, err error) {
	switch strings.ToLower(cfg.Driver) {
	case "", constants.DialectSQLite, "sqlite":
		path := cfg.Path
		if path == "" {
			path = constants.DefaultDatabasePath
		}
		if strings.ContainsRune(path, '\x00') {
			return "", "", "", errors.NewConfigError("database.path", "invalid database path")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return "", "", "", errors.Wrap(err, errors.ErrCodeDatabaseConnection, "failed to create database directory")
			}
		}
		return constants.DialectSQLite, sqliteDriverName, path + "?_foreign_keys=on&_busy_timeout=5000", nil
	case constants.DialectPostgres, "pgx":
		if cfg.URL == "" {
			return "", "", "", errors.NewConfigError("database.url", "database url is required for postgres")
		}
		return constants.DialectPostgres, "pgx", cfg.URL, nil
	}
	return "", "", "", errors.NewConfigError("database.driver", fmt.Sprintf("unsupported driver %q", cfg.Driver))
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func valueOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the store is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Dialect returns the SQL dialect in use
func (d *Database) Dialect() string {
	return d.dialect
}

// timestamp normalizes times so they compare correctly as stored values
func (d *Database) timestamp() time.Time {
	return normalizeTime(d.now())
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// rebind rewrites ? placeholders to $n for postgres
func (d *Database) rebind(query string) string {
	if d.dialect != constants.DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (d *Database) exec(ctx context.Context, q querier, query string, args ...interface{}) (sql.Result, error) {
	return q.ExecContext(ctx, d.rebind(query), args...)
}

func (d *Database) query(ctx context.Context, q querier, query string, args ...interface{}) (*sql.Rows, error) {
	return q.QueryContext(ctx, d.rebind(query), args...)
}

func (d *Database) queryRow(ctx context.Context, q querier, query string, args ...interface{}) *sql.Row {
	return q.QueryRowContext(ctx, d.rebind(query), args...)
}

// withTx runs fn in a transaction, rolling back on error
func (d *Database) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError(operation, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError(operation, err)
	}
	return nil
}

// affectedOrNotFound turns a zero-row write into a not found error
func affectedOrNotFound(result sql.Result, operation, resource, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError(operation, err)
	}
	if rows == 0 {
		return errors.NewNotFoundError(resource, id)
	}
	return nil
}

func isNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

// inClause returns "?, ?, ?" for n placeholders
func inClause(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// likePattern builds a case-insensitive substring pattern with LIKE
// metacharacters escaped by backslash
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return normalizeTime(*t)
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
