package vsphere

import "fmt"

// ConnectionError reports a malformed endpoint or an authentication or
// transport failure while establishing a session.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RetrievalError reports a failed remote inventory or performance call.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func retrievalError(op string, err error) error {
	return &RetrievalError{Op: op, Err: err}
}
