// Package format lays out SPARQL result rows as plain text context for the
// answer model.
//
// Each Category has its own layout. A layout that panics or produces nothing
// is replaced by the General layout, which lists every row, and the returned
// Context records the fallback. Zero rows always yield a fixed, localized
// "no data" message.
package format
