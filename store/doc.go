// Package store persists answer records produced by the question answering
// pipeline.
//
// A Record is an envelope around the JSON encoded answer bundle. The envelope
// copies the few fields backends need for filtering and ordering (ID, question,
// outcome, terminal stage, creation time) so that a store never has to decode
// the payload.
//
// All backends implement RecordStore:
//
//	type RecordStore interface {
//	    Save(ctx context.Context, record *Record) error
//	    Load(ctx context.Context, id string) (*Record, error)
//	    List(ctx context.Context, opts ListOptions) ([]*Record, error)
//	    Delete(ctx context.Context, id string) error
//	    Clear(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Implementations
//
//   - store/memory: map backed, for tests and single-process use
//   - store/file: one JSON document per record in a directory
//   - store/redis: keys plus a sorted set index, optional TTL
//   - store/sqlite: single table, file based
//   - store/postgres: single table with a JSONB payload column
//
// Load and Delete wrap ErrNotFound for unknown IDs; check it with errors.Is.
// List always returns records newest first.
package store
