package realtime

import "time"

const (
	// The feed is server-push only, so inbound frames stay small.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frames per window before the connection is dropped.
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)
