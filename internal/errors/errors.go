// Package errors defines the error taxonomy for the streaming pipeline.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Typed resource errors carrying measurements
// - Error category checking functions
// - Error wrapping and construction helpers
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Resource errors
	ErrResourceExhausted    = errors.New("resource exhausted")
	ErrDiskExhausted        = errors.New("disk space exhausted")
	ErrMemoryExhausted      = errors.New("memory exhausted")
	ErrCPUOverloaded        = errors.New("cpu overloaded")
	ErrDegradationEmergency = errors.New("degradation emergency")

	// Channel errors
	ErrChannelClosed = errors.New("channel closed")
	ErrSendTimeout   = errors.New("send timeout")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Platform errors
	ErrUnsupported = errors.New("unsupported on this platform")

	// Lifecycle errors
	ErrAborted        = errors.New("aborted")
	ErrAlreadyRunning = errors.New("already running")
	ErrSinkClosed     = errors.New("sink closed")
)

// ============================================================================
// Typed errors
// ============================================================================

// DiskExhaustedError reports a breach of the disk free-space requirement.
type DiskExhaustedError struct {
	AvailableMB uint64
	RequiredMB  uint64
	IsSoftLimit bool
	Message     string
}

func (e *DiskExhaustedError) Error() string { return e.Message }

// Is matches ErrDiskExhausted and ErrResourceExhausted.
func (e *DiskExhaustedError) Is(target error) bool {
	return target == ErrDiskExhausted || target == ErrResourceExhausted
}

// MemoryExhaustedError reports resident memory above the hard limit.
type MemoryExhaustedError struct {
	CurrentMB   uint64
	LimitMB     uint64
	IsSoftLimit bool
	Message     string
}

func (e *MemoryExhaustedError) Error() string { return e.Message }

// Is matches ErrMemoryExhausted and ErrResourceExhausted.
func (e *MemoryExhaustedError) Is(target error) bool {
	return target == ErrMemoryExhausted || target == ErrResourceExhausted
}

// CPUOverloadError reports CPU load at or above the critical threshold.
type CPUOverloadError struct {
	Load       float64
	Threshold  float64
	IsCritical bool
	Message    string
}

func (e *CPUOverloadError) Error() string { return e.Message }

// Is matches ErrCPUOverloaded.
func (e *CPUOverloadError) Is(target error) bool {
	return target == ErrCPUOverloaded
}

// EmergencyError signals that the degradation controller reached its most
// severe level and the run must shut down.
type EmergencyError struct {
	Level   string
	Message string
}

func (e *EmergencyError) Error() string {
	return fmt.Sprintf("degradation level %s: %s", e.Level, e.Message)
}

// Is matches ErrDegradationEmergency.
func (e *EmergencyError) Is(target error) bool {
	return target == ErrDegradationEmergency
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// IsResourceError returns true for disk or memory exhaustion.
func IsResourceError(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

// IsTerminal returns true if the error must end the run.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, ErrDegradationEmergency) ||
		errors.Is(err, ErrChannelClosed) ||
		errors.Is(err, ErrAborted)
}

// IsRetriable returns true if the operation may succeed if attempted again.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrSendTimeout) ||
		errors.Is(err, ErrCPUOverloaded)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value any, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewDiskExhausted builds the hard-limit error returned by disk checks.
func NewDiskExhausted(availableMB, requiredMB uint64) *DiskExhaustedError {
	return &DiskExhaustedError{
		AvailableMB: availableMB,
		RequiredMB:  requiredMB,
		Message: fmt.Sprintf("disk space exhausted: only %d MB available, need at least %d MB; "+
			"free up disk space or reduce output volume", availableMB, requiredMB),
	}
}

// NewMemoryExhausted builds the hard-limit error returned by memory checks.
func NewMemoryExhausted(currentMB, limitMB uint64) *MemoryExhaustedError {
	return &MemoryExhaustedError{
		CurrentMB: currentMB,
		LimitMB:   limitMB,
		Message: fmt.Sprintf("memory limit exceeded: using %d MB, hard limit is %d MB; "+
			"reduce volume or raise guard.memory.hard_limit_mb", currentMB, limitMB),
	}
}
