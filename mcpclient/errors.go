package mcpclient

import (
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/client/transport"
)

// ErrNoSession is returned when the gateway handshake could not be completed.
var ErrNoSession = errors.New("gateway session unavailable")

// IsStaleSessionError reports whether err means the gateway no longer
// recognises the session and a fresh handshake is needed.
func IsStaleSessionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transport.ErrSessionTerminated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "session terminated") ||
		strings.Contains(msg, "session not found") ||
		strings.Contains(msg, "invalid session") ||
		strings.Contains(msg, "unknown session") ||
		IsBrokenPipeError(err)
}

// IsBrokenPipeError checks if an error is a broken pipe error
func IsBrokenPipeError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Broken pipe") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}
