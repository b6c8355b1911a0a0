package submission

import (
	"errors"
	"fmt"
)

// Job failures come in two classes. Recoverable failures (transport blips,
// busy webhook) are worth redelivering; everything else terminates the job
// for this tick and waits for the next schedule.
type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string { return fmt.Sprintf("recoverable: %v", e.err) }
func (e *recoverableError) Unwrap() error { return e.err }

// Recoverable marks err as worth a redelivery.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverable reports whether the job should be redelivered.
func IsRecoverable(err error) bool {
	var r *recoverableError
	return errors.As(err, &r)
}
