package batch

import (
	"fmt"
	"time"
)

// ErrorCode classifies per-file analysis failures.
type ErrorCode string

const (
	ErrorDecodeFailed       ErrorCode = "DECODE_FAILED"
	ErrorSegmentationFailed ErrorCode = "SEGMENTATION_FAILED"
	ErrorRegistrationFailed ErrorCode = "REGISTRATION_FAILED"
	ErrorMeasurementFailed  ErrorCode = "MEASUREMENT_FAILED"
	ErrorOutputFailed       ErrorCode = "OUTPUT_FAILED"
)

// AnalysisError is a structured per-file failure: what failed, for
// which file, and the underlying cause.
type AnalysisError struct {
	Code      ErrorCode
	Message   string
	File      string
	Timestamp time.Time
	Cause     error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s (caused by: %v)", e.Code, e.File, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.File, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Factory functions for the per-stage errors.

func newDecodeError(file string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorDecodeFailed,
		Message:   "failed to decode acquisition",
		File:      file,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func newSegmentationError(file, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorSegmentationFailed,
		Message:   message,
		File:      file,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func newRegistrationError(file string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorRegistrationFailed,
		Message:   "failed to register acquisition geometry",
		File:      file,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func newMeasurementError(file, message string) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorMeasurementFailed,
		Message:   message,
		File:      file,
		Timestamp: time.Now(),
	}
}

func newOutputError(file string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorOutputFailed,
		Message:   "failed to write result bundle",
		File:      file,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}
