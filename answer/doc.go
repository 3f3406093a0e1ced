// Package answer phrases the final natural-language answer from the
// formatted query results.
//
// The answer never fails the request: when the model cannot be reached the
// Synthesizer returns a templated fallback built from the raw context.
package answer
