package constants

import "time"

// Run retention constants
const (
	// MaxFinishedRuns is how many finished runs are kept in memory for status queries
	MaxFinishedRuns = 50
)

// Streaming constants
const (
	// SSEKeepAlive is the interval of comment lines keeping idle SSE streams open
	SSEKeepAlive = 15 * time.Second

	// WSWriteWait is the time allowed to write a WebSocket message
	WSWriteWait = 10 * time.Second

	// WSPongWait is the time allowed to read the next pong from the peer
	WSPongWait = 60 * time.Second

	// WSPingPeriod sends pings before WSPongWait expires
	WSPingPeriod = WSPongWait * 9 / 10
)

// Capture constants
const (
	// MaxSnapshotSize caps one camera snapshot in bytes (16MB)
	MaxSnapshotSize = 16 << 20

	// MaxSourceErrors is how many consecutive snapshot failures end a live run
	MaxSourceErrors = 10
)
