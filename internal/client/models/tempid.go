package models

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const tempIDPrefix = "local-"

var lastTempID atomic.Int64

// NewTempID returns a time-based id for a record created while the server
// could not be reached. Ids are strictly increasing within a process.
func NewTempID(now time.Time) string {
	n := now.UnixNano()
	for {
		prev := lastTempID.Load()
		if n <= prev {
			n = prev + 1
		}
		if lastTempID.CompareAndSwap(prev, n) {
			return tempIDPrefix + strconv.FormatInt(n, 10)
		}
	}
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
