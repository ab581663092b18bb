package ftpfs

import (
	"errors"
	"fmt"
	"net/textproto"
)

var (
	// ErrInvalidArgument is returned for missing inputs and URIs that are not
	// FTP-scheme. It is always reported before any request is issued.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned when a file entry is built with a negative length.
	ErrOutOfRange = errors.New("value out of range")

	ErrNotSeekable = errors.New("stream does not support seeking")
	ErrClosed      = errors.New("stream already closed")
)

// TransportError wraps a failure reported by the delegated transport together
// with the request that caused it.
type TransportError struct {
	Method Method
	URI    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("ftp: %s %s: %v", e.Method, e.URI, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Code returns the FTP reply code carried by the underlying error, or 0 when
// the failure did not come from a server reply (refused connection, timeout).
func (e *TransportError) Code() int {
	var pe *textproto.Error
	if errors.As(e.Err, &pe) {
		return pe.Code
	}
	return 0
}

// IsInvalidArgument reports whether err was caused by a rejected argument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsTransport reports whether err came from the delegated transport.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func invalidArgument(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, name, fmt.Sprintf(format, args...))
}
