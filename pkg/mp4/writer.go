// Package mp4 contains a MP4 muxer for H264 and AAC streams.
// Samples are appended to a single mdat box; the moov box is written when
// the file is finished, then the size of mdat is patched.
package mp4

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/abema/go-mp4"

	"github.com/nvrcore/camrtsp/internal/mp4writer"
	"github.com/nvrcore/camrtsp/pkg/codec"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
)

const (
	movieTimescale = 1000

	// timescale of fields expressed in the 16.16 fixed-point format
	fixedPointOne = 1 << 16
)

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

type track struct {
	id        uint32
	timescale uint32
	tracker   TrakTracker
}

// returns the delay of the first sample, in movie timescale.
func (t *track) startOffset(start float64) uint64 {
	secs := float64(t.tracker.FirstTimestamp())/float64(t.timescale) - start
	return uint64(secs * movieTimescale)
}

func (t *track) movieDuration() uint64 {
	return t.tracker.TotalDuration() * movieTimescale / uint64(t.timescale)
}

// Writer is a MP4 muxer.
type Writer struct {
	w          *mp4writer.Writer
	video      *codec.H264Parameters
	audio      *codec.AACParameters
	videoTrack *track
	audioTrack *track
	mdatOffset int
	mdatSize   uint64
	finished   bool
}

// NewWriter allocates a Writer and writes the file header.
// At least one between video and audio must be provided.
func NewWriter(w io.WriteSeeker, video *codec.H264Parameters, audio *codec.AACParameters) (*Writer, error) {
	if video == nil && audio == nil {
		return nil, fmt.Errorf("at least one track is needed")
	}

	mw := &Writer{
		w:     mp4writer.New(w),
		video: video,
		audio: audio,
	}

	nextID := uint32(1)

	if video != nil {
		if video.PixelDimensions[0] > math.MaxUint16 || video.PixelDimensions[1] > math.MaxUint16 {
			return nil, fmt.Errorf("unsupported video size %dx%d", video.PixelDimensions[0], video.PixelDimensions[1])
		}
		mw.videoTrack = &track{id: nextID}
		nextID++
	}

	if audio != nil {
		mw.audioTrack = &track{id: nextID}
	}

	_, err := mw.w.WriteBox(&mp4.Ftyp{ // <ftyp/>
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 0,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', '2'}},
			{CompatibleBrand: [4]byte{'a', 'v', 'c', '1'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
		},
	})
	if err != nil {
		return nil, err
	}

	// the size is patched by Finish().
	// A 64-bit size allows files bigger than 4 GiB.
	mw.mdatOffset, err = mw.w.WriteBoxHeader(mp4.BoxTypeMdat(), mp4.LargeHeaderSize)
	if err != nil {
		return nil, err
	}

	return mw, nil
}

// WriteVideoFrame writes a H264 access unit.
// Frames preceding the first random access point are discarded.
func (w *Writer) WriteVideoFrame(fr *codec.VideoFrame) error {
	if w.videoTrack == nil {
		return fmt.Errorf("video track is not enabled")
	}

	// a single sample entry is written
	if fr.NewParameters != nil && !bytes.Equal(fr.NewParameters.AVCDecoderConfig, w.video.AVCDecoderConfig) {
		return fmt.Errorf("video parameters changed, this is not supported")
	}

	if w.videoTrack.tracker.SampleCount() == 0 && !fr.IsRandomAccessPoint {
		return nil
	}

	return w.writeSample(w.videoTrack, fr.Timestamp, fr.Data, fr.IsRandomAccessPoint)
}

// WriteAudioFrame writes an AAC access unit.
func (w *Writer) WriteAudioFrame(fr *codec.AudioFrame) error {
	if w.audioTrack == nil {
		return fmt.Errorf("audio track is not enabled")
	}

	return w.writeSample(w.audioTrack, fr.Timestamp, fr.Data, false)
}

func (w *Writer) writeSample(t *track, ts rtptime.Timestamp, data []byte, sync bool) error {
	if w.finished {
		return fmt.Errorf("writer is finished")
	}

	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("sample is too big")
	}

	if t.timescale == 0 {
		t.timescale = ts.ClockRate
	} else if ts.ClockRate != t.timescale {
		return fmt.Errorf("clock rate changed from %d to %d", t.timescale, ts.ClockRate)
	}

	pos, err := w.w.Offset()
	if err != nil {
		return err
	}

	err = t.tracker.AddSample(uint64(pos), uint32(len(data)), ts.Elapsed(), sync)
	if err != nil {
		return err
	}

	_, err = w.w.Write(data)
	if err != nil {
		return err
	}

	w.mdatSize += uint64(len(data))
	return nil
}

func (w *Writer) tracks() []*track {
	var ret []*track
	for _, t := range []*track{w.videoTrack, w.audioTrack} {
		if t != nil && t.tracker.SampleCount() != 0 {
			ret = append(ret, t)
		}
	}
	return ret
}

// Finish writes the moov box and patches the mdat size.
// The Writer can't be used anymore after calling it.
func (w *Writer) Finish() error {
	if w.finished {
		return fmt.Errorf("writer is finished")
	}
	w.finished = true

	tracks := w.tracks()

	// tracks are aligned with an empty edit
	start := math.Inf(1)
	for _, t := range tracks {
		t.tracker.Finish()
		start = math.Min(start, float64(t.tracker.FirstTimestamp())/float64(t.timescale))
	}

	var movieDuration uint64
	for _, t := range tracks {
		movieDuration = max(movieDuration, t.startOffset(start)+t.movieDuration())
	}

	if movieDuration > math.MaxUint32 {
		return fmt.Errorf("duration is too long")
	}

	/*
		|moov|
		|    |mvhd|
		|    |trak|
		|    |trak|
	*/

	_, err := w.w.WriteBoxStart(&mp4.Moov{}) // <moov>
	if err != nil {
		return err
	}

	nextTrackID := uint32(1)
	if w.audioTrack != nil {
		nextTrackID = w.audioTrack.id + 1
	} else if w.videoTrack != nil {
		nextTrackID = w.videoTrack.id + 1
	}

	_, err = w.w.WriteBox(&mp4.Mvhd{ // <mvhd/>
		Timescale:   movieTimescale,
		DurationV0:  uint32(movieDuration),
		Rate:        fixedPointOne,
		Volume:      256,
		Matrix:      unityMatrix,
		NextTrackID: nextTrackID,
	})
	if err != nil {
		return err
	}

	for _, t := range tracks {
		err = w.writeTrak(t, t.startOffset(start))
		if err != nil {
			return err
		}
	}

	err = w.w.WriteBoxEnd() // </moov>
	if err != nil {
		return err
	}

	return w.w.PatchBoxHeader(w.mdatOffset, mp4.BoxTypeMdat(), mp4.LargeHeaderSize+w.mdatSize)
}

func (w *Writer) writeTrak(t *track, startOffset uint64) error {
	/*
		|trak|
		|    |tkhd|
		|    |edts|
		|    |    |elst|
		|    |mdia|
		|    |    |mdhd|
		|    |    |hdlr|
		|    |    |minf|
		|    |    |    |vmhd| (video only)
		|    |    |    |smhd| (audio only)
		|    |    |    |dinf|
		|    |    |    |    |dref|
		|    |    |    |    |    |url|
		|    |    |    |stbl|
	*/

	isVideo := t == w.videoTrack
	duration := t.movieDuration()

	if t.tracker.TotalDuration() > math.MaxUint32 {
		return fmt.Errorf("duration of track %d is too long", t.id)
	}

	_, err := w.w.WriteBoxStart(&mp4.Trak{}) // <trak>
	if err != nil {
		return err
	}

	tkhd := &mp4.Tkhd{
		FullBox: mp4.FullBox{
			Flags: [3]byte{0, 0, 3}, // enabled, in movie
		},
		TrackID:    t.id,
		DurationV0: uint32(startOffset + duration),
		Matrix:     unityMatrix,
	}

	if isVideo {
		tkhd.Width = w.video.PixelDimensions[0] * fixedPointOne
		tkhd.Height = w.video.PixelDimensions[1] * fixedPointOne
	} else {
		tkhd.AlternateGroup = 1
		tkhd.Volume = 256
	}

	_, err = w.w.WriteBox(tkhd) // <tkhd/>
	if err != nil {
		return err
	}

	if startOffset != 0 {
		_, err = w.w.WriteBoxStart(&mp4.Edts{}) // <edts>
		if err != nil {
			return err
		}

		_, err = w.w.WriteBox(&mp4.Elst{ // <elst/>
			EntryCount: 2,
			Entries: []mp4.ElstEntry{
				{
					SegmentDurationV0: uint32(startOffset),
					MediaTimeV0:       -1,
					MediaRateInteger:  1,
				},
				{
					SegmentDurationV0: uint32(duration),
					MediaTimeV0:       0,
					MediaRateInteger:  1,
				},
			},
		})
		if err != nil {
			return err
		}

		err = w.w.WriteBoxEnd() // </edts>
		if err != nil {
			return err
		}
	}

	_, err = w.w.WriteBoxStart(&mp4.Mdia{}) // <mdia>
	if err != nil {
		return err
	}

	_, err = w.w.WriteBox(&mp4.Mdhd{ // <mdhd/>
		Timescale:  t.timescale,
		DurationV0: uint32(t.tracker.TotalDuration()),
		Language:   [3]byte{'u', 'n', 'd'},
	})
	if err != nil {
		return err
	}

	hdlr := &mp4.Hdlr{}
	if isVideo {
		hdlr.HandlerType = [4]byte{'v', 'i', 'd', 'e'}
		hdlr.Name = "VideoHandler"
	} else {
		hdlr.HandlerType = [4]byte{'s', 'o', 'u', 'n'}
		hdlr.Name = "SoundHandler"
	}

	_, err = w.w.WriteBox(hdlr) // <hdlr/>
	if err != nil {
		return err
	}

	_, err = w.w.WriteBoxStart(&mp4.Minf{}) // <minf>
	if err != nil {
		return err
	}

	if isVideo {
		_, err = w.w.WriteBox(&mp4.Vmhd{ // <vmhd/>
			FullBox: mp4.FullBox{
				Flags: [3]byte{0, 0, 1},
			},
		})
	} else {
		_, err = w.w.WriteBox(&mp4.Smhd{}) // <smhd/>
	}
	if err != nil {
		return err
	}

	_, err = w.w.WriteBoxStart(&mp4.Dinf{}) // <dinf>
	if err != nil {
		return err
	}

	_, err = w.w.WriteBoxStart(&mp4.Dref{ // <dref>
		EntryCount: 1,
	})
	if err != nil {
		return err
	}

	_, err = w.w.WriteBox(&mp4.Url{ // <url/>
		FullBox: mp4.FullBox{
			Flags: [3]byte{0, 0, mp4.UrlSelfContained},
		},
	})
	if err != nil {
		return err
	}

	err = w.w.WriteBoxEnd() // </dref>
	if err != nil {
		return err
	}

	err = w.w.WriteBoxEnd() // </dinf>
	if err != nil {
		return err
	}

	err = w.writeStbl(t, isVideo)
	if err != nil {
		return err
	}

	err = w.w.WriteBoxEnd() // </minf>
	if err != nil {
		return err
	}

	err = w.w.WriteBoxEnd() // </mdia>
	if err != nil {
		return err
	}

	return w.w.WriteBoxEnd() // </trak>
}

func (w *Writer) writeStbl(t *track, isVideo bool) error {
	/*
		|stbl|
		|    |stsd|
		|    |stts|
		|    |stsc|
		|    |stsz|
		|    |stco| or |co64|
		|    |stss| (video only)
		|    |sgpd| (audio only)
		|    |sbgp| (audio only)
	*/

	_, err := w.w.WriteBoxStart(&mp4.Stbl{}) // <stbl>
	if err != nil {
		return err
	}

	_, err = w.w.WriteBoxStart(&mp4.Stsd{ // <stsd>
		EntryCount: 1,
	})
	if err != nil {
		return err
	}

	if isVideo {
		err = w.writeAVC1()
	} else {
		_, err = w.w.Write(w.audio.SampleEntry) // <mp4a/>
	}
	if err != nil {
		return err
	}

	err = w.w.WriteBoxEnd() // </stsd>
	if err != nil {
		return err
	}

	durations := t.tracker.Durations()

	_, err = w.w.WriteBox(&mp4.Stts{ // <stts/>
		EntryCount: uint32(len(durations)),
		Entries:    durations,
	})
	if err != nil {
		return err
	}

	stsc := t.tracker.stsc()

	_, err = w.w.WriteBox(&mp4.Stsc{ // <stsc/>
		EntryCount: uint32(len(stsc)),
		Entries:    stsc,
	})
	if err != nil {
		return err
	}

	sizes := t.tracker.SampleSizes()

	_, err = w.w.WriteBox(&mp4.Stsz{ // <stsz/>
		SampleCount: uint32(len(sizes)),
		EntrySize:   sizes,
	})
	if err != nil {
		return err
	}

	offsets, large := t.tracker.chunkOffsets()

	if large {
		_, err = w.w.WriteBox(&mp4.Co64{ // <co64/>
			EntryCount:  uint32(len(offsets)),
			ChunkOffset: offsets,
		})
	} else {
		offsets32 := make([]uint32, len(offsets))
		for i, o := range offsets {
			offsets32[i] = uint32(o)
		}

		_, err = w.w.WriteBox(&mp4.Stco{ // <stco/>
			EntryCount:  uint32(len(offsets32)),
			ChunkOffset: offsets32,
		})
	}
	if err != nil {
		return err
	}

	if isVideo {
		syncSamples := t.tracker.SyncSamples()

		_, err = w.w.WriteBox(&mp4.Stss{ // <stss/>
			EntryCount:   uint32(len(syncSamples)),
			SampleNumber: syncSamples,
		})
		if err != nil {
			return err
		}
	} else {
		// Specification: ISO 14496-12, section 10.1
		// each AAC frame depends on the previous one
		_, err = w.w.WriteBox(&mp4.Sgpd{ // <sgpd/>
			FullBox: mp4.FullBox{
				Version: 1,
			},
			GroupingType:  [4]byte{'r', 'o', 'l', 'l'},
			DefaultLength: 2,
			EntryCount:    1,
			RollDistances: []int16{-1},
		})
		if err != nil {
			return err
		}

		_, err = w.w.WriteBox(&mp4.Sbgp{ // <sbgp/>
			GroupingType: 0x726f6c6c, // roll
			EntryCount:   1,
			Entries: []mp4.SbgpEntry{{
				SampleCount:           uint32(len(sizes)),
				GroupDescriptionIndex: 1,
			}},
		})
		if err != nil {
			return err
		}
	}

	return w.w.WriteBoxEnd() // </stbl>
}

func (w *Writer) writeAVC1() error {
	_, err := w.w.WriteBoxStart(&mp4.VisualSampleEntry{ // <avc1>
		SampleEntry: mp4.SampleEntry{
			AnyTypeBox: mp4.AnyTypeBox{
				Type: mp4.BoxTypeAvc1(),
			},
			DataReferenceIndex: 1,
		},
		Width:           uint16(w.video.PixelDimensions[0]),
		Height:          uint16(w.video.PixelDimensions[1]),
		Horizresolution: 72 * fixedPointOne,
		Vertresolution:  72 * fixedPointOne,
		FrameCount:      1,
		Depth:           0x18,
		PreDefined3:     -1,
	})
	if err != nil {
		return err
	}

	_, err = w.w.WriteRawBoxStart(mp4.BoxTypeAvcC(), w.video.AVCDecoderConfig) // <avcC>
	if err != nil {
		return err
	}

	err = w.w.WriteBoxEnd() // </avcC>
	if err != nil {
		return err
	}

	if par := w.video.PixelAspectRatio; par != nil {
		_, err = w.w.WriteBox(&mp4.PixelAspectRatioBox{ // <pasp/>
			AnyTypeBox: mp4.AnyTypeBox{
				Type: mp4.BoxTypePasp(),
			},
			HSpacing: par[0],
			VSpacing: par[1],
		})
		if err != nil {
			return err
		}
	}

	return w.w.WriteBoxEnd() // </avc1>
}
