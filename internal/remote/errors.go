package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable means the health probe failed and no request was sent.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrRemoteOperationFailed means the proxy was reachable but the operation failed.
	ErrRemoteOperationFailed = errors.New("remote operation failed")
)

// OperationError describes a failed document operation.
type OperationError struct {
	Op         string // upsert, findOne or deleteOne
	StatusCode int    // 0 when no response was received
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

func (e *OperationError) Is(target error) bool {
	return target == ErrRemoteOperationFailed
}
