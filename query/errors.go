package query

import (
	"errors"
	"fmt"
)

var (
	ErrRegistrationFailure = errors.New("registration failure")
	ErrExecutionFailure    = errors.New("execution failure")
)

var (
	ErrUnknownTable = func(name string) error {
		return fmt.Errorf("%w: table %q is not registered", ErrExecutionFailure, name)
	}
	ErrUnsupported = func(info string) error {
		return fmt.Errorf("%w: unsupported sql: %s", ErrExecutionFailure, info)
	}
)

func registrationFailure(name, path string, err error) error {
	return fmt.Errorf("%w: table %q from %s: %w", ErrRegistrationFailure, name, path, err)
}

func executionFailure(err error) error {
	if errors.Is(err, ErrExecutionFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrExecutionFailure, err)
}
