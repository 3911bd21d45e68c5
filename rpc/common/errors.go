package common

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Error Types
// --------------------------------------------------------------------------

// ConfigurationError is returned at client-construction time when the transport
// configuration or execution context is invalid. It is never recovered locally.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ConnectionError is returned when a persistent socket connection could not be
// established. It is not retried by the transport selector.
type ConnectionError struct {
	URL string
	// Default is true if URL was not configured and the fallback was used
	Default bool
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Default {
		return fmt.Sprintf("failed to connect to %s (default socket url): %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the server for a single procedure call
type RemoteError struct {
	Procedure string
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Procedure, e.Message)
}
