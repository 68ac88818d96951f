package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration signals that an operation was called before the
	// descriptor or request it depends on was supplied.
	ErrConfiguration = errors.New("configuration error")
	// ErrState signals execution of a request that was never built.
	// State errors are configuration faults and match ErrConfiguration too.
	ErrState = errors.New("state error")
	// ErrInputRejected signals a malformed required identifier.
	ErrInputRejected = errors.New("input rejected")
	// ErrEngineUnavailable signals a transport or availability fault of the search engine.
	ErrEngineUnavailable = errors.New("search engine unavailable")
	// ErrPartialWrite signals that some records of a write failed while siblings succeeded.
	ErrPartialWrite = errors.New("partial write failure")
	// ErrNotFound signals a missing index or document.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError returns an error matching ErrConfiguration.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StateError returns an error matching both ErrState and ErrConfiguration.
func StateError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrState, ErrConfiguration, fmt.Sprintf(format, args...))
}

// InputRejected returns an error matching ErrInputRejected.
func InputRejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputRejected, fmt.Sprintf(format, args...))
}

// PartialWriteError reports how many records of a write failed.
type PartialWriteError struct {
	Failed int
	Total  int
	First  error
}

func (e *PartialWriteError) Error() string {
	if e.First == nil {
		return fmt.Sprintf("%s: %d of %d records failed", ErrPartialWrite, e.Failed, e.Total)
	}
	return fmt.Sprintf("%s: %d of %d records failed, first: %v", ErrPartialWrite, e.Failed, e.Total, e.First)
}

func (e *PartialWriteError) Unwrap() error { return ErrPartialWrite }
