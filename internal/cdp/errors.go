package cdp

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
	CodeDiscoveryFailed = "DISCOVERY_FAILED"
	CodeProtocol        = "PROTOCOL"
)

var (
	// ErrCommandTimeout is returned when a command's reply does not arrive
	// within the connection's command timeout.
	ErrCommandTimeout = errors.New("cdp: command timed out")

	// ErrConnClosed is returned to commands still waiting when the
	// connection goes away.
	ErrConnClosed = errors.New("cdp: connection closed")
)

// CodedError is a typed error for connection-level failures.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// CommandError is an error reply from the browser for one command.
type CommandError struct {
	Method  string
	Code    int64
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("cdp: %s: %s (%d)", e.Method, e.Message, e.Code)
}

const resourceMissingHint = "No resource with given identifier"

// IsResourceMissing reports whether err is the browser telling us a
// response body was already evicted.
func IsResourceMissing(err error) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return strings.Contains(cmdErr.Message, resourceMissingHint)
	}
	return false
}
