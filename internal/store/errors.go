package store

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrUnavailable matches every UnavailableError via errors.Is.
var ErrUnavailable = eris.New("store: unavailable")

// UnavailableError reports that the store could not be reached or did not
// answer. Callers should retry; it never means "not authorized".
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return "store: " + e.Op + " unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) true.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// IsUnavailable reports whether err is, or wraps, an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
