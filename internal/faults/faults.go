package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a transcoding failure
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindUpload     Kind = "UPLOAD"
	KindDownload   Kind = "DOWNLOAD"
	KindDelete     Kind = "DELETE"
	KindSubmission Kind = "SUBMISSION"
	KindRemoteJob  Kind = "REMOTE_JOB"
	KindTimeout    Kind = "TIMEOUT"
	KindCleanup    Kind = "CLEANUP"
)

// Fault is a classified transcoding error
type Fault struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap returns the underlying error
func (f *Fault) Unwrap() error {
	return f.Cause
}

// New creates a new fault
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Wrap creates a new fault wrapping a cause
func Wrap(kind Kind, message string, cause error) *Fault {
	return &Fault{Kind: kind, Message: message, Cause: cause}
}

// Newf creates a new fault with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" if err is not a fault
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err is a fault of the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable returns true if retrying the same request may succeed.
// Local I/O faults are retryable; a remote encoding error on the same
// input usually is not, and neither is bad caller input.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindUpload, KindDownload, KindSubmission, KindTimeout:
		return true
	default:
		return false
	}
}
