package engine

import (
	"errors"
	"fmt"
	"syscall"
)

// ListenError reports a failure to bind the server's address.
// Err is the underlying *net.OpError.
type ListenError struct {
	Addr string
	Err  error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// IsAddrInUse reports whether err is a port conflict.
func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
