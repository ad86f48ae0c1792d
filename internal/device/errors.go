package device

import (
	"errors"
	"fmt"
)

// ConnectionState represents the specific kind of connection state failure.
type ConnectionState string

const (
	NotConnected      ConnectionState = "not_connected"
	AlreadyConnecting ConnectionState = "already_connecting"
	AlreadyConnected  ConnectionState = "already_connected"
)

// ConnectionError represents any connection-related problem.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states.
var (
	ErrNotConnected      = &ConnectionError{State: NotConnected}
	ErrAlreadyConnecting = &ConnectionError{State: AlreadyConnecting}
	ErrAlreadyConnected  = &ConnectionError{State: AlreadyConnected}
)

var (
	// ErrBluetoothUnavailable means the host has no usable radio. Fatal
	// to scanning and connecting; there is no retry path without user
	// intervention.
	ErrBluetoothUnavailable = errors.New("bluetooth unavailable")

	// ErrLinkLost marks an unsolicited disconnect. The session tears
	// down all subscriptions when it observes this.
	ErrLinkLost = errors.New("link lost")
)

// IsConnectionState reports whether err is a ConnectionError with the
// given state.
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
