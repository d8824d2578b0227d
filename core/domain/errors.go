package domain

import "errors"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrAccessDenied      = errors.New("access denied")
	ErrResultExists      = errors.New("result already written")
	ErrInvalidBatch      = errors.New("invalid batch")
	ErrNotReady          = errors.New("result not ready")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
