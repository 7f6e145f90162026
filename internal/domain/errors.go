package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindDecodeFailure      ErrorKind = "decode_failure"
	KindEncodeFailure      ErrorKind = "encode_failure"
	KindSurfaceUnavailable ErrorKind = "surface_unavailable"
	KindRemoteFailure      ErrorKind = "remote_failure"
	KindReadFailure        ErrorKind = "read_failure"
)

// ReasonNoImage is shown when the background model answers without an image.
const ReasonNoImage = "AI did not return an image. The response might have been blocked or an error occurred."

// Error carries a reason that is safe to show to the user as-is.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func NewError(kind ErrorKind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail renders reason and cause for logs.
func (e *Error) Detail() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ReasonOf returns the display reason of err, falling back to err.Error().
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return err.Error()
}
