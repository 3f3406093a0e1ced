package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/kgqa/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresRecordStore implements store.RecordStore using PostgreSQL
type PostgresRecordStore struct {
	pool      DBPool
	tableName string
}

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "answer_records"
}

// NewPostgresRecordStore creates a pool, ensures the schema and returns the store
func NewPostgresRecordStore(ctx context.Context, opts PostgresOptions) (*PostgresRecordStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := NewPostgresRecordStoreWithPool(pool, opts.TableName)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresRecordStoreWithPool creates a record store with an existing pool
// Useful for testing with mocks
func NewPostgresRecordStoreWithPool(pool DBPool, tableName string) *PostgresRecordStore {
	if tableName == "" {
		tableName = "answer_records"
	}
	return &PostgresRecordStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresRecordStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			stage TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at DESC);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresRecordStore) Close() error {
	s.pool.Close()
	return nil
}

// Save stores a record
func (s *PostgresRecordStore) Save(ctx context.Context, record *store.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id is required")
	}

	payload := []byte(record.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, question, success, stage, created_at, payload) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET question = EXCLUDED.question, success = EXCLUDED.success, stage = EXCLUDED.stage, created_at = EXCLUDED.created_at, payload = EXCLUDED.payload`, s.tableName)

	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.Question,
		record.Success,
		record.Stage,
		record.CreatedAt,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*store.Record, error) {
	var r store.Record
	var payload []byte
	if err := row.Scan(&r.ID, &r.Question, &r.Success, &r.Stage, &r.CreatedAt, &payload); err != nil {
		return nil, err
	}
	r.Payload = payload
	return &r, nil
}

// Load retrieves a record by ID
func (s *PostgresRecordStore) Load(ctx context.Context, id string) (*store.Record, error) {
	query := fmt.Sprintf("SELECT id, question, success, stage, created_at, payload FROM %s WHERE id = $1", s.tableName)

	r, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return r, nil
}

// List returns records newest first
func (s *PostgresRecordStore) List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, question, success, stage, created_at, payload FROM %s", s.tableName)

	var args []any
	if opts.Success != nil {
		args = append(args, *opts.Success)
		fmt.Fprintf(&b, " WHERE success = $%d", len(args))
	}
	b.WriteString(" ORDER BY created_at DESC, id ASC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*store.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}
	return records, nil
}

// Delete removes a record
func (s *PostgresRecordStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// Clear removes all records
func (s *PostgresRecordStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", s.tableName)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

var _ store.RecordStore = (*PostgresRecordStore)(nil)
