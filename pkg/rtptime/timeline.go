// Package rtptime contains utilities to reconstruct monotonic timestamps from RTP timestamps.
package rtptime

import (
	"fmt"
	"math"
)

// MaxForwardTimeJumpSecs is the maximum forward jump allowed between two
// consecutive timestamps of a stream.
const MaxForwardTimeJumpSecs = 10

// Timestamp is a monotonic timestamp, obtained by unwrapping 32-bit RTP timestamps.
type Timestamp struct {
	// monotonic value, in clock rate units
	Value int64

	// clock rate, in Hz
	ClockRate uint32

	// RTP timestamp corresponding to NPT 0
	Start uint32
}

// Elapsed returns the time elapsed since the start of the timeline, in clock rate units.
func (t Timestamp) Elapsed() int64 {
	return t.Value - int64(t.Start)
}

// ElapsedSecs returns the time elapsed since the start of the timeline, in seconds.
func (t Timestamp) ElapsedSecs() float64 {
	return float64(t.Elapsed()) / float64(t.ClockRate)
}

// Add returns the timestamp shifted by delta, or false on overflow.
func (t Timestamp) Add(delta int64) (Timestamp, bool) {
	if (delta > 0 && t.Value > math.MaxInt64-delta) ||
		(delta < 0 && t.Value < math.MinInt64-delta) {
		return Timestamp{}, false
	}
	t.Value += delta
	return t, true
}

// String implements fmt.Stringer.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d (mod-2^32: %d), npt %.03f", t.Value, uint32(t.Value), t.ElapsedSecs())
}

// Timeline produces monotonic Timestamps from the wrapping 32-bit RTP timestamps of a stream.
type Timeline struct {
	timestamp      int64
	clockRate      uint32
	start          *uint32
	maxForwardJump int32
}

// NewTimeline allocates a Timeline.
// start is the RTP timestamp corresponding to NPT 0, when known from RTP-Info.
func NewTimeline(start *uint32, clockRate uint32) (*Timeline, error) {
	if clockRate == 0 {
		return nil, fmt.Errorf("clock rate 0 is not allowed")
	}

	maxForwardJump := uint64(clockRate) * MaxForwardTimeJumpSecs
	if maxForwardJump > math.MaxInt32 {
		return nil, fmt.Errorf("clock rate %d is not allowed, since a jump of %d seconds would exceed the maximum delta",
			clockRate, MaxForwardTimeJumpSecs)
	}

	t := &Timeline{
		clockRate:      clockRate,
		maxForwardJump: int32(maxForwardJump),
	}

	if start != nil {
		v := *start
		t.start = &v
		t.timestamp = int64(v)
	}

	return t, nil
}

// ClockRate returns the clock rate.
func (t *Timeline) ClockRate() uint32 {
	return t.clockRate
}

func (t *Timeline) init(rtpTimestamp uint32) uint32 {
	if t.start == nil {
		t.start = &rtpTimestamp
		t.timestamp = int64(rtpTimestamp)
	}
	return *t.start
}

func (t *Timeline) delta(rtpTimestamp uint32) int32 {
	return int32(rtpTimestamp - uint32(t.timestamp))
}

// AdvanceTo advances the timeline to the given RTP timestamp.
// It fails on backward jumps and on forward jumps of MaxForwardTimeJumpSecs or more.
func (t *Timeline) AdvanceTo(rtpTimestamp uint32) (Timestamp, error) {
	start := t.init(rtpTimestamp)
	delta := t.delta(rtpTimestamp)

	if delta < 0 || delta >= t.maxForwardJump {
		return Timestamp{}, fmt.Errorf("timestamp jumped by %d (%.03f sec) from %d to RTP timestamp %d, "+
			"allowed range is [0, %d sec)",
			delta, float64(delta)/float64(t.clockRate), t.timestamp, rtpTimestamp, MaxForwardTimeJumpSecs)
	}

	t.timestamp += int64(delta)

	return Timestamp{
		Value:     t.timestamp,
		ClockRate: t.clockRate,
		Start:     start,
	}, nil
}

// Place places the given RTP timestamp on the timeline without advancing it.
// Backward jumps are allowed, since RTCP sender reports may refer to
// a moment slightly before the latest RTP packet.
func (t *Timeline) Place(rtpTimestamp uint32) (Timestamp, error) {
	start := t.init(rtpTimestamp)
	delta := t.delta(rtpTimestamp)

	ts, ok := Timestamp{
		Value:     t.timestamp,
		ClockRate: t.clockRate,
		Start:     start,
	}.Add(int64(delta))
	if !ok {
		return Timestamp{}, fmt.Errorf("timestamp %d + %d overflows", t.timestamp, delta)
	}

	return ts, nil
}
