package inbox

import (
	"fmt"
)

// PersistenceError indicates the storage layer was unavailable or rejected a
// write. Tasks that hit it are eligible for retry by the queue consumer.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
