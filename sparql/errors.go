package sparql

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// ErrorKind classifies execution failures.
type ErrorKind int

const (
	// KindTransport covers unreachable endpoints, timeouts, 5xx responses and
	// undecodable bodies.
	KindTransport ErrorKind = iota
	// KindQueryRejected is a 4xx response: the endpoint refused the query.
	KindQueryRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindQueryRejected:
		return "query_rejected"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ExecutionError is returned by Client.Query.
type ExecutionError struct {
	Kind     ErrorKind
	Status   int
	Message  string
	Query    string
	Attempts int
	Err      error

	decode bool
}

func (e *ExecutionError) Error() string {
	switch {
	case e.Kind == KindQueryRejected:
		return fmt.Sprintf("sparql query rejected (status %d): %s", e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("sparql endpoint error (status %d): %s", e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("sparql transport error: %v", e.Err)
	default:
		return "sparql transport error: " + e.Message
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) retryable() bool {
	return e.Kind == KindTransport && !e.decode
}

// IsRejected reports whether err is a query rejected by the endpoint.
func IsRejected(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Kind == KindQueryRejected
}
