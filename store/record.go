package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned by Load and Delete when no record has the given ID.
var ErrNotFound = errors.New("record not found")

// Record is a persisted answer bundle. The indexed columns are copied out of the
// payload so backends can filter and sort without decoding it.
type Record struct {
	ID        string          `json:"id"`
	Question  string          `json:"question"`
	Success   bool            `json:"success"`
	Stage     string          `json:"stage"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// ListOptions filters and bounds List results.
type ListOptions struct {
	// Limit caps the number of records returned, 0 means no limit.
	Limit int

	// Success, when set, keeps only records with the same outcome.
	Success *bool
}

// Match reports whether r passes the filter.
func (o ListOptions) Match(r *Record) bool {
	return o.Success == nil || *o.Success == r.Success
}

// RecordStore defines the interface for answer record persistence
type RecordStore interface {
	// Save stores a record, replacing any record with the same ID
	Save(ctx context.Context, record *Record) error

	// Load retrieves a record by ID
	Load(ctx context.Context, id string) (*Record, error)

	// List returns records newest first
	List(ctx context.Context, opts ListOptions) ([]*Record, error)

	// Delete removes a record
	Delete(ctx context.Context, id string) error

	// Clear removes all records
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Sort orders records newest first, breaking ties by ID, and applies opts.
// Backends that cannot filter natively use it on their full scan.
func Sort(records []*Record, opts ListOptions) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if r != nil && opts.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
