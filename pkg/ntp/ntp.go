// Package ntp contains functions to decode timestamps from NTP format.
package ntp

import (
	"math"
	"time"
)

// seconds between 1st January 1900 and 1st January 1970.
const epochOffset = 2208988800

// Decode decodes a timestamp from NTP format.
// Specification: RFC3550, section 4
func Decode(v uint64) time.Time {
	secs := int64((v >> 32) - epochOffset)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1000000000) / (1 << 32))))
	return time.Unix(secs, nanos)
}

// Timestamp is a 64-bit NTP timestamp, as found in RTCP sender reports.
type Timestamp uint64

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return Decode(uint64(t))
}

// String implements fmt.Stringer.
func (t Timestamp) String() string {
	return t.Time().UTC().Format("2006-01-02T15:04:05.000Z")
}
