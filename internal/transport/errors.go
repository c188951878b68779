package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when the delivery queue cannot accept another envelope.
	ErrQueueFull = errors.New("delivery queue full")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport closed")
)

// DeliveryError is a definite rejection of an envelope. Synchronous errors
// happen while the request is being built and queued: the envelope never left
// the process. Asynchronous errors come back from the native layer.
type DeliveryError struct {
	Synchronous bool
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Synchronous {
		return fmt.Sprintf("delivery construction fault: %v", e.Err)
	}
	return fmt.Sprintf("delivery rejected: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsConstructionFault reports whether err is a synchronous delivery fault.
// Only these guarantee that nothing attached to the envelope was delivered.
func IsConstructionFault(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Synchronous
}
