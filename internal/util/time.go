package util

import "time"

// Now returns the current time in UTC. Timestamps are stored and compared
// in UTC throughout.
func Now() time.Time { return time.Now().UTC() }
