package rtptime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func uint32Ptr(v uint32) *uint32 {
	return &v
}

func TestNewTimelineErrors(t *testing.T) {
	for _, ca := range []struct {
		name      string
		clockRate uint32
		err       string
	}{
		{
			"zero",
			0,
			"clock rate 0 is not allowed",
		},
		{
			"max",
			math.MaxUint32,
			"clock rate 4294967295 is not allowed, since a jump of 10 seconds would exceed the maximum delta",
		},
		{
			"just above limit",
			math.MaxInt32/MaxForwardTimeJumpSecs + 1,
			"clock rate 214748365 is not allowed, since a jump of 10 seconds would exceed the maximum delta",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := NewTimeline(uint32Ptr(0), ca.clockRate)
			require.EqualError(t, err, ca.err)
		})
	}

	_, err := NewTimeline(nil, math.MaxInt32/MaxForwardTimeJumpSecs)
	require.NoError(t, err)
}

func TestTimelineAdvanceTo(t *testing.T) {
	tl, err := NewTimeline(uint32Ptr(42), 90000)
	require.NoError(t, err)

	ts, err := tl.AdvanceTo(83)
	require.NoError(t, err)
	require.Equal(t, int64(83-42), ts.Elapsed())

	ts, err = tl.AdvanceTo(453)
	require.NoError(t, err)
	require.Equal(t, int64(453-42), ts.Elapsed())
	require.Equal(t, Timestamp{Value: 453, ClockRate: 90000, Start: 42}, ts)

	// same timestamp is allowed
	ts, err = tl.AdvanceTo(453)
	require.NoError(t, err)
	require.Equal(t, int64(453), ts.Value)
}

func TestTimelineWraparound(t *testing.T) {
	tl, err := NewTimeline(uint32Ptr(math.MaxUint32), 90000)
	require.NoError(t, err)

	ts, err := tl.AdvanceTo(5)
	require.NoError(t, err)
	require.Equal(t, int64(6), ts.Elapsed())
	require.Equal(t, int64(math.MaxUint32)+6, ts.Value)
	require.Equal(t, uint32(5), uint32(ts.Value))
}

func TestTimelineNoStart(t *testing.T) {
	tl, err := NewTimeline(nil, 90000)
	require.NoError(t, err)

	ts, err := tl.AdvanceTo(218250000)
	require.NoError(t, err)
	require.Equal(t, int64(0), ts.Elapsed())
	require.Equal(t, uint32(218250000), ts.Start)
}

func TestTimelineRejection(t *testing.T) {
	for _, ca := range []struct {
		name string
		ts   uint32
		err  string
	}{
		{
			"forward jump",
			100 + MaxForwardTimeJumpSecs*90000,
			"timestamp jumped by 900000 (10.000 sec) from 100 to RTP timestamp 900100, allowed range is [0, 10 sec)",
		},
		{
			"backward jump",
			99,
			"timestamp jumped by -1 (-0.000 sec) from 100 to RTP timestamp 99, allowed range is [0, 10 sec)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			tl, err := NewTimeline(uint32Ptr(100), 90000)
			require.NoError(t, err)

			_, err = tl.AdvanceTo(ca.ts)
			require.EqualError(t, err, ca.err)

			// the timeline is left untouched
			ts, err := tl.AdvanceTo(100)
			require.NoError(t, err)
			require.Equal(t, int64(100), ts.Value)
		})
	}

	tl, err := NewTimeline(uint32Ptr(100), 90000)
	require.NoError(t, err)
	_, err = tl.AdvanceTo(100 + MaxForwardTimeJumpSecs*90000 - 1)
	require.NoError(t, err)
}

func TestTimelineMonotonic(t *testing.T) {
	tl, err := NewTimeline(uint32Ptr(math.MaxUint32-200000), 90000)
	require.NoError(t, err)

	cur := uint32(math.MaxUint32 - 200000)
	prev := int64(cur)

	for _, delta := range []uint32{0, 1, 3000, 3003, 899999, 45000, 0, 90000, 12} {
		cur += delta

		ts, err := tl.AdvanceTo(cur)
		require.NoError(t, err)
		require.GreaterOrEqual(t, ts.Value, prev)
		require.Equal(t, cur, uint32(ts.Value))
		prev = ts.Value
	}
}

func TestTimelinePlace(t *testing.T) {
	tl, err := NewTimeline(uint32Ptr(1000), 8000)
	require.NoError(t, err)

	_, err = tl.AdvanceTo(5000)
	require.NoError(t, err)

	// backward
	ts, err := tl.Place(4000)
	require.NoError(t, err)
	require.Equal(t, Timestamp{Value: 4000, ClockRate: 8000, Start: 1000}, ts)

	// far forward
	ts, err = tl.Place(5000 + 60*8000)
	require.NoError(t, err)
	require.Equal(t, int64(5000+60*8000), ts.Value)

	// the timeline didn't move
	ts, err = tl.AdvanceTo(5001)
	require.NoError(t, err)
	require.Equal(t, int64(5001), ts.Value)
}

func TestTimelinePlaceSetsStart(t *testing.T) {
	tl, err := NewTimeline(nil, 8000)
	require.NoError(t, err)

	ts, err := tl.Place(1234)
	require.NoError(t, err)
	require.Equal(t, Timestamp{Value: 1234, ClockRate: 8000, Start: 1234}, ts)

	ts, err = tl.AdvanceTo(1300)
	require.NoError(t, err)
	require.Equal(t, int64(66), ts.Elapsed())
}

func TestTimestampString(t *testing.T) {
	ts := Timestamp{
		Value:     int64(math.MaxUint32) + 90001,
		ClockRate: 90000,
		Start:     math.MaxUint32,
	}
	require.Equal(t, "4295057296 (mod-2^32: 90000), npt 1.000", ts.String())
}

func TestTimestampAdd(t *testing.T) {
	ts := Timestamp{Value: 10, ClockRate: 90000}

	ts2, ok := ts.Add(-20)
	require.True(t, ok)
	require.Equal(t, int64(-10), ts2.Value)

	_, ok = Timestamp{Value: math.MaxInt64}.Add(1)
	require.False(t, ok)
}
