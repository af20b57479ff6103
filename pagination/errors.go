package pagination

import "fmt"

// PaginationExhaustedError is returned when a listing kept failing past the
// per-cursor failure limit or the consecutive skip limit. Records collected before the abort are
// discarded.
type PaginationExhaustedError struct {
	Endpoint string
	Cursor   uint64
	Err      error
}

func (e *PaginationExhaustedError) Error() string {
	return fmt.Sprintf("pagination: %s exhausted retries at cursor %d: %v", e.Endpoint, e.Cursor, e.Err)
}

func (e *PaginationExhaustedError) Unwrap() error {
	return e.Err
}
