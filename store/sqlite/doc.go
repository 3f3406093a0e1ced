// Package sqlite provides a SQLite-backed store.RecordStore.
//
// The schema is created on open:
//
//	CREATE TABLE IF NOT EXISTS answer_records (
//	    id TEXT PRIMARY KEY,
//	    question TEXT NOT NULL,
//	    success BOOLEAN NOT NULL,
//	    stage TEXT NOT NULL,
//	    created_at DATETIME NOT NULL,
//	    payload TEXT NOT NULL
//	);
//
// The driver is github.com/mattn/go-sqlite3, so builds need cgo.
package sqlite
