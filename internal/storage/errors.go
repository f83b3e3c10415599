package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStore matches every error returned by Store operations.
	ErrStore          = errors.New("store error")
	ErrPhotoNotFound  = errors.New("photo not found")
	ErrEmptyPhotoID   = errors.New("photo id cannot be empty")
	ErrInvalidPhotoID = errors.New("photo id contains a NUL byte")
)

// Error wraps an underlying failure with the store operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrStore
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
