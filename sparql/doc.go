// Package sparql is a small SPARQL 1.1 protocol client.
//
// Queries are POSTed as application/x-www-form-urlencoded and results are
// requested as application/sparql-results+json. Failures are reported as
// *ExecutionError: KindQueryRejected for 4xx answers, which are never
// retried, and KindTransport for everything else, retried with exponential
// backoff.
package sparql
