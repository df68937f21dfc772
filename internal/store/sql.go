package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrConflict is returned when a write violates a table constraint
	ErrConflict = errors.New("snapshot write conflict")

	// ErrSchemaMissing is returned when the properties table does not exist
	ErrSchemaMissing = errors.New("snapshot table missing")
)

// SQLConfig holds SQL store configuration
type SQLConfig struct {
	// DB is the database connection
	DB *sql.DB

	// Driver is the driver name the connection was opened with: "sqlite3",
	// "pgx" or "postgres" (lib/pq)
	Driver string

	// TableName is the name of the properties table
	TableName string
}

// DefaultSQLConfig returns default SQL configuration
func DefaultSQLConfig(db *sql.DB, driver string) *SQLConfig {
	return &SQLConfig{
		DB:        db,
		Driver:    driver,
		TableName: "objrt_properties",
	}
}

// SQLStore keeps one row per property. A marker row named __type records
// the snapshot's type so that snapshots without properties still exist.
type SQLStore struct {
	db       *sql.DB
	table    string
	postgres bool
}

// NewSQLStore creates a SQL store and its table
func NewSQLStore(ctx context.Context, config *SQLConfig) (*SQLStore, error) {
	if config.TableName == "" {
		config.TableName = "objrt_properties"
	}
	s := &SQLStore{
		db:       config.DB,
		table:    pgx.Identifier{config.TableName}.Sanitize(),
		postgres: config.Driver == "pgx" || config.Driver == "postgres",
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to create properties table: %w", err)
	}
	return s, nil
}

// EnsureSchema creates the properties table if it doesn't exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			object_key VARCHAR(255) NOT NULL,
			property VARCHAR(255) NOT NULL,
			type_name VARCHAR(255) NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (object_key, property)
		)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query)
	return ConvertDBError(err)
}

// Put replaces every row of key in one transaction
func (s *SQLStore) Put(ctx context.Context, key string, snap *Snapshot) error {
	rows, err := s.rows(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE object_key = ?", s.table))
	if _, err := tx.ExecContext(ctx, del, key); err != nil {
		return ConvertDBError(err)
	}
	insert := s.rebind(fmt.Sprintf(
		"INSERT INTO %s (object_key, property, type_name, value) VALUES (?, ?, ?, ?)", s.table))
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insert, key, r[0], snap.Type, r[1]); err != nil {
			return ConvertDBError(err)
		}
	}
	return ConvertDBError(tx.Commit())
}

// Merge upserts the listed properties of key
func (s *SQLStore) Merge(ctx context.Context, key string, snap *Snapshot) error {
	rows, err := s.rows(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (object_key, property, type_name, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (object_key, property) DO UPDATE SET type_name = excluded.type_name, value = excluded.value
	`, s.table))
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, upsert, key, r[0], snap.Type, r[1]); err != nil {
			return ConvertDBError(err)
		}
	}
	return ConvertDBError(tx.Commit())
}

// Get reads every row of key
func (s *SQLStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	query := s.rebind(fmt.Sprintf(
		"SELECT property, type_name, value FROM %s WHERE object_key = ? ORDER BY property", s.table))

	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var snap *Snapshot
	for rows.Next() {
		var property, typeName, raw string
		if err := rows.Scan(&property, &typeName, &raw); err != nil {
			return nil, ConvertDBError(err)
		}
		if snap == nil {
			snap = &Snapshot{Type: typeName, Properties: make(map[string]any)}
		}
		if property == typeField {
			continue
		}
		v, err := decodeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("property '%s': %w", property, err)
		}
		snap.Properties[property] = v
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertDBError(err)
	}
	if snap == nil {
		return nil, ErrNotFound
	}
	return snap, nil
}

// Delete removes every row of key
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE object_key = ?", s.table))
	_, err := s.db.ExecContext(ctx, query, key)
	return ConvertDBError(err)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rows returns (property, encoded value) pairs including the type marker
func (s *SQLStore) rows(snap *Snapshot) ([][2]string, error) {
	out := make([][2]string, 0, len(snap.Properties)+1)
	out = append(out, [2]string{typeField, `""`})
	for _, name := range snap.Names() {
		enc, err := encodeJSON(snap.Properties[name])
		if err != nil {
			return nil, fmt.Errorf("property '%s': %w", name, err)
		}
		out = append(out, [2]string{name, enc})
	}
	return out, nil
}

// rebind rewrites ? placeholders to $n for postgres
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConvertDBError converts database-specific errors to store errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23502", "23514": // unique, not null, check violations
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "23": // integrity constraint violation
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case pqErr.Code == "42P01":
			return fmt.Errorf("%w: %s", ErrSchemaMissing, pqErr.Message)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConflict, liteErr)
	}

	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return fmt.Errorf("database error: %w", err)
}
