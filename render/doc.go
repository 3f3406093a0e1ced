// Package render formats answer records as Markdown reports and sanitized
// HTML pages.
package render
