// Package retry re-runs task steps that fail with transient errors.
//
// The engine sends a failing step to the unhandled-exception task at most
// once per run. Wrapping a step with Step gives it its own retries first:
//
//	flow.RegisterTask("fetch", retry.Step(retry.NewConfig(
//	    retry.WithMaxAttempts(5),
//	    retry.WithInitialBackoff(200*time.Millisecond),
//	), fetch))
//
// Only transient errors are retried. Mark them with Transient, or rely on
// Categorize, which also treats timeouts as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: timeouts, temporary network issues, a busy dependency.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and attempt count.
type CategorizedError struct {
	Err      error
	Category Category

	// Attempts is the number of attempts that have been made.
	Attempts int

	// Context describes why retrying stopped.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Categorize classifies err.
//
// Errors marked with Transient, errors reporting Timeout() or Temporary()
// as true, and context.DeadlineExceeded are transient. Everything else,
// including context.Canceled, is permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}

	var te *transientError
	if errors.As(err, &te) {
		return CategoryTransient
	}

	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return CategoryTransient
	}
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && Categorize(err) == CategoryTransient
}
