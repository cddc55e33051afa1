package auth

import "fmt"

// AuthError reports a failure to establish or refresh credentials: no active
// account, a denied or expired device flow, a malformed provider response, or
// a failed silent refresh. Callers recover by re-running the login tools or
// selecting an account.
type AuthError struct {
	Message string
	// Detail carries the provider-supplied error description when available.
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// FlowNotFoundError reports a device-flow handle that is unknown: already
// consumed, never issued, or lost to a process restart. The remedy is starting
// a fresh flow, not retrying the same handle.
type FlowNotFoundError struct {
	FlowID string
}

func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("device flow %q does not exist or has already been completed", e.FlowID)
}
