package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/kgqa/store"
)

// SqliteRecordStore implements store.RecordStore using SQLite
type SqliteRecordStore struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "answer_records"
}

// NewSqliteRecordStore opens the database and creates the schema
func NewSqliteRecordStore(opts SqliteOptions) (*SqliteRecordStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "answer_records"
	}

	s := &SqliteRecordStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteRecordStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			stage TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteRecordStore) Close() error {
	return s.db.Close()
}

// Save stores a record
func (s *SqliteRecordStore) Save(ctx context.Context, record *store.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id is required")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, question, success, stage, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			success = excluded.success,
			stage = excluded.stage,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Question,
		record.Success,
		record.Stage,
		record.CreatedAt.UTC(),
		string(record.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*store.Record, error) {
	var r store.Record
	var payload string
	if err := row.Scan(&r.ID, &r.Question, &r.Success, &r.Stage, &r.CreatedAt, &payload); err != nil {
		return nil, err
	}
	r.Payload = []byte(payload)
	return &r, nil
}

// Load retrieves a record by ID
func (s *SqliteRecordStore) Load(ctx context.Context, id string) (*store.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, question, success, stage, created_at, payload
		FROM %s
		WHERE id = ?
	`, s.tableName)

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return r, nil
}

// List returns records newest first
func (s *SqliteRecordStore) List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, question, success, stage, created_at, payload FROM %s", s.tableName)

	var args []any
	if opts.Success != nil {
		b.WriteString(" WHERE success = ?")
		args = append(args, *opts.Success)
	}
	b.WriteString(" ORDER BY created_at DESC, id ASC")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
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
func (s *SqliteRecordStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// Clear removes all records
func (s *SqliteRecordStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

var _ store.RecordStore = (*SqliteRecordStore)(nil)
