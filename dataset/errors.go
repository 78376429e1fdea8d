package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrIoFailure       = errors.New("io failure")
	ErrEncodingFailure = errors.New("encoding failure")
)

// StorageError carries the failure kind, the path involved (when there is
// one) and the underlying cause. It matches its Kind with errors.Is.
type StorageError struct {
	Kind error
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func ioFailure(path string, err error) error {
	return &StorageError{Kind: ErrIoFailure, Path: path, Err: err}
}

func encodingFailure(path string, err error) error {
	return &StorageError{Kind: ErrEncodingFailure, Path: path, Err: err}
}
