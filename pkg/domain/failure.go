package domain

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// FailureKind classifies a node failure.
type FailureKind string

const (
	FailureTransient  FailureKind = "transient"
	FailureValidation FailureKind = "validation"
	FailureFatal      FailureKind = "fatal"
)

// Failure is the typed failure record nodes write instead of returning errors.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Node    string      `json:"node"`
	Message string      `json:"message"`
}

func (f Failure) Error() string {
	return string(f.Kind) + " failure in " + f.Node + ": " + f.Message
}

// IsTransient reports whether err is a timeout, a dropped connection or
// explicitly marked with ErrTransient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}

// Classify maps an error to a failure kind. Anything not transient is fatal.
func Classify(err error) FailureKind {
	if IsTransient(err) {
		return FailureTransient
	}
	return FailureFatal
}
