package mp4

import (
	"fmt"
	"math"

	"github.com/abema/go-mp4"
)

// Chunk is a run of contiguous samples in mdat.
type Chunk struct {
	Offset       uint64
	SampleCount  uint32
	nextPosition uint64
}

// TrakTracker collects the sample table of a track while samples are written.
type TrakTracker struct {
	sampleSizes    []uint32
	chunks         []Chunk
	durations      []mp4.SttsEntry
	syncSamples    []uint32
	firstTimestamp int64
	lastTimestamp  int64
	totDuration    uint64
	finished       bool
}

// AddSample adds a sample to the track.
// pos is the absolute position of the sample in the file, timestamp is
// expressed in the track timescale.
// Durations lag one sample behind, since the duration of a sample is
// known only when the next one arrives.
func (t *TrakTracker) AddSample(pos uint64, size uint32, timestamp int64, sync bool) error {
	if t.finished {
		return fmt.Errorf("track is finished")
	}

	if uint64(len(t.sampleSizes)) == math.MaxUint32 {
		return fmt.Errorf("too many samples")
	}

	if len(t.sampleSizes) == 0 {
		t.firstTimestamp = timestamp
	} else {
		delta := timestamp - t.lastTimestamp
		if delta < 0 {
			return fmt.Errorf("timestamp went backwards, from %d to %d", t.lastTimestamp, timestamp)
		}
		if delta > math.MaxUint32 {
			return fmt.Errorf("sample duration %d is too big", delta)
		}

		t.addDuration(uint32(delta))
		t.totDuration += uint64(delta)
	}
	t.lastTimestamp = timestamp

	// a new chunk starts when samples are not contiguous
	if len(t.chunks) == 0 || t.chunks[len(t.chunks)-1].nextPosition != pos {
		t.chunks = append(t.chunks, Chunk{Offset: pos})
	}
	c := &t.chunks[len(t.chunks)-1]
	c.SampleCount++
	c.nextPosition = pos + uint64(size)

	t.sampleSizes = append(t.sampleSizes, size)

	if sync {
		// sample numbers start from 1
		t.syncSamples = append(t.syncSamples, uint32(len(t.sampleSizes)))
	}

	return nil
}

func (t *TrakTracker) addDuration(d uint32) {
	if n := len(t.durations); n != 0 && t.durations[n-1].SampleDelta == d {
		t.durations[n-1].SampleCount++
		return
	}

	t.durations = append(t.durations, mp4.SttsEntry{
		SampleCount: 1,
		SampleDelta: d,
	})
}

// Finish closes the track.
// The duration of the last sample is unknown and is set to zero.
func (t *TrakTracker) Finish() {
	if t.finished {
		return
	}
	t.finished = true

	if len(t.sampleSizes) != 0 {
		t.durations = append(t.durations, mp4.SttsEntry{
			SampleCount: 1,
			SampleDelta: 0,
		})
	}
}

// SampleCount returns the number of samples.
func (t *TrakTracker) SampleCount() int {
	return len(t.sampleSizes)
}

// SampleSizes returns the size of each sample.
func (t *TrakTracker) SampleSizes() []uint32 {
	return t.sampleSizes
}

// Durations returns the run-length encoded sample durations.
func (t *TrakTracker) Durations() []mp4.SttsEntry {
	return t.durations
}

// SyncSamples returns the 1-based numbers of sync samples.
func (t *TrakTracker) SyncSamples() []uint32 {
	return t.syncSamples
}

// Chunks returns the chunks of the track.
func (t *TrakTracker) Chunks() []Chunk {
	return t.chunks
}

// FirstTimestamp returns the timestamp of the first sample.
func (t *TrakTracker) FirstTimestamp() int64 {
	return t.firstTimestamp
}

// TotalDuration returns the sum of sample durations.
func (t *TrakTracker) TotalDuration() uint64 {
	return t.totDuration
}

func (t *TrakTracker) stsc() []mp4.StscEntry {
	var entries []mp4.StscEntry

	for i, c := range t.chunks {
		if n := len(entries); n != 0 && entries[n-1].SamplesPerChunk == c.SampleCount {
			continue
		}

		entries = append(entries, mp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        c.SampleCount,
			SampleDescriptionIndex: 1,
		})
	}

	return entries
}

func (t *TrakTracker) chunkOffsets() ([]uint64, bool) {
	ret := make([]uint64, len(t.chunks))
	large := false

	for i, c := range t.chunks {
		ret[i] = c.Offset
		if c.Offset > math.MaxUint32 {
			large = true
		}
	}

	return ret, large
}
