package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrHeaderTooLarge   = errors.New("header exceeds maximum size")
	ErrInvalidOffsets   = errors.New("invalid tensor offsets")
	ErrTensorNotFound   = errors.New("tensor not found")
	ErrNotStateDict     = errors.New("checkpoint is not a state dict")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrEmptyTensor      = errors.New("zero-sized tensors cannot be loaded")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap lets errors.Is match ErrInvalidOffsets.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidOffsets
}
