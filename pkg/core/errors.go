package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrMissingResource is returned when a backing resource required at
	// startup (model endpoint, embedding backend) is not available.
	ErrMissingResource = errors.New("missing resource")

	// ErrCorruptStore is returned when the vector index and its metadata
	// disagree in length, or the stored dimension does not match.
	ErrCorruptStore = errors.New("corrupt vector store")

	// ErrEmbeddingFailed is returned when the embedding port fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrInferenceFailed is returned when the inference port fails.
	ErrInferenceFailed = errors.New("inference failed")

	// ErrDimensionMismatch is returned when a vector does not have the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreClosed is returned when trying to use a closed store
	ErrStoreClosed = errors.New("store is closed")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vectorstore: %v", e.Err)
	}
	return fmt.Sprintf("vectorstore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
