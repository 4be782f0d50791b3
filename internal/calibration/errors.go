package calibration

import "fmt"

// ValidationError reports a value rejected before any resource was touched.
type ValidationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Field, e.Value, e.Reason)
}

// BindError reports that the ingest listener could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ParseError reports a malformed frame. Field is the zero-based index of the
// offending field, or -1 when the field count was wrong.
type ParseError struct {
	Frame string
	Field int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("malformed frame %q: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("malformed frame %q: field %d: %v", e.Frame, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConnectionError reports a read or socket failure on one client connection.
type ConnectionError struct {
	Remote string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Remote, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PersistenceError reports an I/O failure against the durable store.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
