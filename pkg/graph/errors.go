package graph

import (
	"errors"
	"fmt"

	"github.com/fmulab/graphqa/internal/util"
)

// ErrQueryTimeout is matched by a QueryExecutionError that ran past its deadline.
var ErrQueryTimeout = errors.New("graph query timed out")

// ConnectionError reports that the graph store could not be reached or
// rejected the credentials.
type ConnectionError struct {
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("graph connection to %s failed: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryExecutionError wraps any failure raised while running a query.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("graph query failed: %v (query: %s)", e.Err, util.Truncate(util.CompactWhitespace(e.Query), 120))
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the query was aborted by its deadline.
func (e *QueryExecutionError) Timeout() bool {
	return errors.Is(e.Err, ErrQueryTimeout)
}
