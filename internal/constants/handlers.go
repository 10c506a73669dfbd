// Package constants provides shared constants used across the codebase.
package constants

// Handler pagination constants
const (
	// DefaultHandlerPageSize is the page size for paginated handler endpoints
	DefaultHandlerPageSize = 100

	// MaxHandlerPageSize caps the limit query parameter
	MaxHandlerPageSize = 1000
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for run event listeners.
	// A listener that falls further behind misses events.
	EventChannelBuffer = 256
)

// Request constants
const (
	// MaxRequestBodySize is the maximum JSON request body size in bytes (1MB)
	MaxRequestBodySize = 1 << 20
)
