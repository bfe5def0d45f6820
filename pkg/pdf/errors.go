package pdf

import (
	"errors"
	"fmt"
)

// SigningError reports a failure while mutating or reading a PDF. The
// underlying cause is kept for diagnostics.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("pdf: %s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

func signingErr(op string, err error) error {
	var se *SigningError
	if errors.As(err, &se) {
		return err
	}
	return &SigningError{Op: op, Err: err}
}

// recoverMalformed turns reader panics on malformed input into errors.
func recoverMalformed(op string, err *error) {
	if r := recover(); r != nil {
		*err = &SigningError{Op: op, Err: fmt.Errorf("malformed document: %v", r)}
	}
}
