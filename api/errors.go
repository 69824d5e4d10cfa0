// File: api/errors.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Status codes and structured errors for the XSK control surface.
// Named and valued after the Windows NTSTATUS codes spec.md's IOCTL
// surface is built on, so control-path callers can reason about them
// the way the original driver's callers do.

package api

import "fmt"

// Status mirrors the subset of NTSTATUS values the XSK control surface
// returns. Zero is success, matching NT_SUCCESS(STATUS_SUCCESS).
type Status uint32

const (
	StatusSuccess Status = 0
	// Parameter errors (spec.md §7): rejected at the IOCTL boundary, no state change.
	StatusInvalidParameter Status = 0xC000000D
	// Resource errors: no-memory, page-lock failure.
	StatusNoMemory               Status = 0xC0000017
	StatusInsufficientResources  Status = 0xC000009A
	// State errors: operation requested in the wrong socket state.
	StatusInvalidDeviceState Status = 0xC0000184
	// Peer-protocol / ring-consistency violation.
	StatusInvalidBufferSize Status = 0xC0000206
	// Lower-layer detach.
	StatusDeviceNotReady Status = 0xC00000A3
	// Overlapped notify cancellation.
	StatusCancelled    Status = 0xC0000120
	StatusTimeout      Status = 0x00000102
	StatusPending      Status = 0x00000103
	StatusNotSupported Status = 0xC00000BB
	StatusNotFound     Status = 0xC0000225
)

// Succeeded reports NT_SUCCESS semantics: success and informational
// codes (top two bits 00 or 01) succeed; warning/error codes do not.
func (s Status) Succeeded() bool {
	return s>>30 < 2
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusNoMemory:
		return "NO_MEMORY"
	case StatusInsufficientResources:
		return "INSUFFICIENT_RESOURCES"
	case StatusInvalidDeviceState:
		return "INVALID_DEVICE_STATE"
	case StatusInvalidBufferSize:
		return "INVALID_BUFFER_SIZE"
	case StatusDeviceNotReady:
		return "DEVICE_NOT_READY"
	case StatusCancelled:
		return "CANCELLED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusPending:
		return "PENDING"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusNotFound:
		return "NOT_FOUND"
	default:
		return fmt.Sprintf("STATUS(0x%08X)", uint32(s))
	}
}

// Error wraps a Status with free-form context, for control-path callers
// that want more detail than the bare code.
type Error struct {
	Status  Status
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s (context: %+v)", e.Status, e.Message, e.Context)
}

// NewError builds a structured Error for a given status and message.
func NewError(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// WithContext attaches a key/value pair and returns the receiver for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
