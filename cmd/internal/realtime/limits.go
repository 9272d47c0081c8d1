package realtime

import "time"

// Security/performance limits for the notification socket.
const (
	// Max bytes per websocket frame read (hard limit). Subscribe frames are
	// tiny; anything near this limit is hostile.
	maxFrameBytes = 8 << 10 // 8 KiB
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (frames per window). Legitimate clients send
	// a handful of subscribe frames at most.
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
