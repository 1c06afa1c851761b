package throttle

import "time"

var monotonicStart = time.Now()

// MonotonicNanos returns the nanoseconds elapsed since the process started;
// it is not affected by the wall clock changes.
func MonotonicNanos() int64 {
	return int64(time.Since(monotonicStart))
}
