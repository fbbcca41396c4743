package entity

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidStream     = errors.New("invalid video stream")
	ErrInvalidInterval   = errors.New("invalid sample interval")
	ErrFrameUnavailable  = errors.New("frame unavailable")
	ErrNoCandidates      = errors.New("no frames found for the video")
	ErrDetectionService  = errors.New("detection service failure")
	ErrPersistence       = errors.New("persistence failure")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrPayloadTooLarge   = errors.New("video exceeds upload size limit")
	ErrVideoNotFound     = errors.New("video record not found")
)

// InvalidStreamError reports a video that cannot be opened or has no usable frame rate.
type InvalidStreamError struct {
	Source string
	Err    error
}

func (e *InvalidStreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrInvalidStream, e.Source)
	}
	return fmt.Sprintf("%s: %s: %v", ErrInvalidStream, e.Source, e.Err)
}

func (e *InvalidStreamError) Unwrap() []error {
	return []error{ErrInvalidStream, e.Err}
}

// DetectionServiceError wraps a failed call to the external detector.
type DetectionServiceError struct {
	StatusCode int
	Err        error
}

func (e *DetectionServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", ErrDetectionService, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrDetectionService, e.Err)
}

func (e *DetectionServiceError) Unwrap() []error {
	return []error{ErrDetectionService, e.Err}
}

// PersistenceError wraps an object store failure on a given key.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPersistence, e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsPermanent reports errors that a retry cannot fix. An interrupted operation
// is never permanent.
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidStream) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrNoCandidates)
}
