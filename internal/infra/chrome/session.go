package chrome

import (
	"context"
	"errors"
	"strings"
)

// IsSessionInterrupted reports whether err means the browser session went away
// (timeout, cancellation or a closed target) rather than the page misbehaving.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "websocket: close") ||
		strings.Contains(msg, "use of closed network connection")
}
