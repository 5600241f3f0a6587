package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// Expired reports whether a unix expiry is at or before now. Zero means no expiry.
func Expired(expiresAt, now int64) bool {
	return expiresAt > 0 && expiresAt <= now
}
