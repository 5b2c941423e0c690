package network

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrUnavailable means the backend could not be reached or reported that
	// the requested service is not running.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrSegmentTooSmall means the segmentation model produced a degenerate mask.
	ErrSegmentTooSmall = errors.New("segment too small")

	// ErrRejected covers every other failure reported by the backend.
	ErrRejected = errors.New("request rejected by backend")
)

// Error is a failed backend call.
type Error struct {
	Op         string // endpoint, e.g. "segment_3d_model"
	StatusCode int    // 0 when the request never got a response
	Message    string
	Kind       error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v (HTTP %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
}

// Unwrap exposes the error kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// classify maps an HTTP status and backend message to an error kind.
func classify(status int, msg string) error {
	switch {
	case strings.Contains(strings.ToLower(msg), "too small"):
		return ErrSegmentTooSmall
	case status == 502 || status == 503 || status == 504:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
