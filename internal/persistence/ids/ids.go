// Package ids hands out record identifiers: wall-clock milliseconds, bumped
// past floor so two records created in the same millisecond never collide.
package ids

import "time"

func Next(now time.Time, floor int64) int64 {
	id := now.UnixMilli()
	if id <= floor {
		id = floor + 1
	}
	return id
}
