package mp4

import (
	"bytes"
	"io"
	"testing"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/require"

	"github.com/nvrcore/camrtsp/pkg/codec"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
)

var (
	testSPS = []byte{
		0x67, 0x4d, 0x00, 0x1e, 0x95, 0xa8, 0x2d, 0x0f,
		0x69, 0xb8, 0x08, 0x08, 0x08, 0x10,
	}
	testPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

func testParams(t *testing.T) (*codec.H264Parameters, *codec.AACParameters) {
	video, err := codec.NewH264Parameters(testSPS, testPPS)
	require.NoError(t, err)

	audio, err := codec.ParseAACFMTP("mode=AAC-hbr;sizelength=13;indexlength=3;" +
		"indexdeltalength=3;config=1188")
	require.NoError(t, err)

	return video, audio
}

func videoFrame(ts int64, rap bool, size int) *codec.VideoFrame {
	return &codec.VideoFrame{
		Timestamp:           rtptime.Timestamp{Value: ts, ClockRate: 90000},
		IsRandomAccessPoint: rap,
		Data:                bytes.Repeat([]byte{byte(size)}, size),
	}
}

func audioFrame(ts int64) *codec.AudioFrame {
	return &codec.AudioFrame{
		Timestamp:   rtptime.Timestamp{Value: ts, ClockRate: 48000},
		FrameLength: 1024,
		Data:        []byte{1, 2, 3, 4, 5},
	}
}

func extract[T mp4.IBox](t *testing.T, r io.ReadSeeker, path ...mp4.BoxType) []T {
	boxes, err := mp4.ExtractBoxWithPayload(r, nil, path)
	require.NoError(t, err)

	ret := make([]T, len(boxes))
	for i, b := range boxes {
		ret[i] = b.Payload.(T)
	}
	return ret
}

func stblPath(typ mp4.BoxType) []mp4.BoxType {
	return []mp4.BoxType{
		mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(),
		mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), typ,
	}
}

func TestWriter(t *testing.T) {
	video, audio := testParams(t)

	var buf seekablebuffer.Buffer
	w, err := NewWriter(&buf, video, audio)
	require.NoError(t, err)

	// discarded, since it precedes the first IDR
	err = w.WriteVideoFrame(videoFrame(0, false, 7))
	require.NoError(t, err)

	err = w.WriteVideoFrame(videoFrame(3000, true, 10))
	require.NoError(t, err)

	err = w.WriteAudioFrame(audioFrame(0))
	require.NoError(t, err)

	err = w.WriteAudioFrame(audioFrame(1024))
	require.NoError(t, err)

	err = w.WriteVideoFrame(videoFrame(6000, false, 20))
	require.NoError(t, err)

	err = w.WriteVideoFrame(videoFrame(9000, true, 30))
	require.NoError(t, err)

	err = w.WriteAudioFrame(audioFrame(2048))
	require.NoError(t, err)

	err = w.Finish()
	require.NoError(t, err)

	r := bytes.NewReader(buf.Bytes())

	ftyp := extract[*mp4.Ftyp](t, r, mp4.BoxTypeFtyp())
	require.Len(t, ftyp, 1)
	require.Equal(t, [4]byte{'i', 's', 'o', 'm'}, ftyp[0].MajorBrand)
	require.True(t, ftyp[0].HasCompatibleBrand([4]byte{'a', 'v', 'c', '1'}))

	mdat, err := mp4.ExtractBox(r, nil, mp4.BoxPath{mp4.BoxTypeMdat()})
	require.NoError(t, err)
	require.Len(t, mdat, 1)
	require.Equal(t, uint64(32), mdat[0].Offset)
	require.Equal(t, uint64(mp4.LargeHeaderSize), mdat[0].HeaderSize)
	require.Equal(t, uint64(16+10+5+5+20+30+5), mdat[0].Size)

	mvhd := extract[*mp4.Mvhd](t, r, mp4.BoxTypeMoov(), mp4.BoxTypeMvhd())
	require.Len(t, mvhd, 1)
	require.Equal(t, uint32(1000), mvhd[0].Timescale)
	require.Equal(t, uint32(33+66), mvhd[0].DurationV0)
	require.Equal(t, uint32(3), mvhd[0].NextTrackID)

	tkhd := extract[*mp4.Tkhd](t, r, mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeTkhd())
	require.Len(t, tkhd, 2)
	require.Equal(t, uint32(1), tkhd[0].TrackID)
	require.Equal(t, uint32(720<<16), tkhd[0].Width)
	require.Equal(t, uint32(480<<16), tkhd[0].Height)
	require.Equal(t, uint32(2), tkhd[1].TrackID)
	require.Equal(t, uint32(42), tkhd[1].DurationV0)

	// the video track starts later than the audio one
	elst := extract[*mp4.Elst](t, r, mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeEdts(), mp4.BoxTypeElst())
	require.Len(t, elst, 1)
	require.Equal(t, []mp4.ElstEntry{
		{SegmentDurationV0: 33, MediaTimeV0: -1, MediaRateInteger: 1},
		{SegmentDurationV0: 66, MediaTimeV0: 0, MediaRateInteger: 1},
	}, elst[0].Entries)

	mdhd := extract[*mp4.Mdhd](t, r, mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(), mp4.BoxTypeMdhd())
	require.Len(t, mdhd, 2)
	require.Equal(t, uint32(90000), mdhd[0].Timescale)
	require.Equal(t, uint32(6000), mdhd[0].DurationV0)
	require.Equal(t, uint32(48000), mdhd[1].Timescale)
	require.Equal(t, uint32(2048), mdhd[1].DurationV0)

	stts := extract[*mp4.Stts](t, r, stblPath(mp4.BoxTypeStts())...)
	require.Len(t, stts, 2)
	require.Equal(t, []mp4.SttsEntry{
		{SampleCount: 2, SampleDelta: 3000},
		{SampleCount: 1, SampleDelta: 0},
	}, stts[0].Entries)
	require.Equal(t, []mp4.SttsEntry{
		{SampleCount: 2, SampleDelta: 1024},
		{SampleCount: 1, SampleDelta: 0},
	}, stts[1].Entries)

	stsc := extract[*mp4.Stsc](t, r, stblPath(mp4.BoxTypeStsc())...)
	require.Len(t, stsc, 2)
	require.Equal(t, []mp4.StscEntry{
		{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1},
		{FirstChunk: 2, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
	}, stsc[0].Entries)
	require.Equal(t, []mp4.StscEntry{
		{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
		{FirstChunk: 2, SamplesPerChunk: 1, SampleDescriptionIndex: 1},
	}, stsc[1].Entries)

	stsz := extract[*mp4.Stsz](t, r, stblPath(mp4.BoxTypeStsz())...)
	require.Len(t, stsz, 2)
	require.Equal(t, []uint32{10, 20, 30}, stsz[0].EntrySize)
	require.Equal(t, []uint32{5, 5, 5}, stsz[1].EntrySize)

	stco := extract[*mp4.Stco](t, r, stblPath(mp4.BoxTypeStco())...)
	require.Len(t, stco, 2)
	require.Equal(t, []uint32{48, 68}, stco[0].ChunkOffset)
	require.Equal(t, []uint32{58, 118}, stco[1].ChunkOffset)

	stss := extract[*mp4.Stss](t, r, stblPath(mp4.BoxTypeStss())...)
	require.Len(t, stss, 1)
	require.Equal(t, []uint32{1, 3}, stss[0].SampleNumber)

	sgpd := extract[*mp4.Sgpd](t, r, stblPath(mp4.BoxTypeSgpd())...)
	require.Len(t, sgpd, 1)
	require.Equal(t, []int16{-1}, sgpd[0].RollDistances)

	sbgp := extract[*mp4.Sbgp](t, r, stblPath(mp4.BoxTypeSbgp())...)
	require.Len(t, sbgp, 1)
	require.Equal(t, []mp4.SbgpEntry{{SampleCount: 3, GroupDescriptionIndex: 1}}, sbgp[0].Entries)

	avcC, err := mp4.ExtractBox(r, nil, append(stblPath(mp4.BoxTypeStsd()), mp4.BoxTypeAvc1(), mp4.BoxTypeAvcC()))
	require.NoError(t, err)
	require.Len(t, avcC, 1)
	payload := make([]byte, avcC[0].Size-avcC[0].HeaderSize)
	_, err = r.ReadAt(payload, int64(avcC[0].Offset+avcC[0].HeaderSize))
	require.NoError(t, err)
	require.Equal(t, video.AVCDecoderConfig, payload)

	esds := extract[*mp4.Esds](t, r, append(stblPath(mp4.BoxTypeStsd()), mp4.BoxTypeMp4a(), mp4.BoxTypeEsds())...)
	require.Len(t, esds, 1)
	require.Equal(t, audio.RawConfig, esds[0].Descriptors[2].Data)

	// samples are stored in the order they were written
	samples := make([]byte, 75)
	_, err = r.ReadAt(samples, 48)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{10}, 10), samples[:10])
	require.Equal(t, []byte{1, 2, 3, 4, 5}, samples[10:15])
	require.Equal(t, bytes.Repeat([]byte{30}, 30), samples[40:70])
}

// sparseFile is a io.WriteSeeker that keeps only small writes,
// allowing to produce big files without storing samples.
type sparseFile struct {
	pos    int64
	size   int64
	chunks []sparseChunk
}

type sparseChunk struct {
	off  int64
	data []byte
}

func (f *sparseFile) Write(p []byte) (int, error) {
	if len(p) <= 1024*1024 {
		f.chunks = append(f.chunks, sparseChunk{off: f.pos, data: append([]byte(nil), p...)})
	}
	f.pos += int64(len(p))
	f.size = max(f.size, f.pos)
	return len(p), nil
}

func (f *sparseFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = f.size + offset
	}
	return f.pos, nil
}

// ReadAt returns zeros in place of discarded data.
func (f *sparseFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}

	n := len(p)
	if off+int64(n) > f.size {
		n = int(f.size - off)
	}
	clear(p[:n])

	// later writes overwrite earlier ones
	for _, c := range f.chunks {
		start := max(off, c.off)
		end := min(off+int64(n), c.off+int64(len(c.data)))
		if start < end {
			copy(p[start-off:end-off], c.data[start-c.off:end-c.off])
		}
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestWriterLargeFile(t *testing.T) {
	video, audio := testParams(t)

	var f sparseFile
	w, err := NewWriter(&f, video, audio)
	require.NoError(t, err)

	const sampleSize = 64 * 1024 * 1024
	data := make([]byte, sampleSize)

	// 65 samples bring mdat over 4 GiB
	for i := range 65 {
		err = w.WriteVideoFrame(&codec.VideoFrame{
			Timestamp:           rtptime.Timestamp{Value: int64(i) * 3000, ClockRate: 90000},
			IsRandomAccessPoint: true,
			Data:                data,
		})
		require.NoError(t, err)
	}

	err = w.WriteAudioFrame(audioFrame(0))
	require.NoError(t, err)

	err = w.WriteVideoFrame(videoFrame(65*3000, true, 10))
	require.NoError(t, err)

	err = w.Finish()
	require.NoError(t, err)

	r := io.NewSectionReader(&f, 0, f.size)

	mdatSize := uint64(mp4.LargeHeaderSize) + 65*sampleSize + 5 + 10

	mdat, err := mp4.ExtractBox(r, nil, mp4.BoxPath{mp4.BoxTypeMdat()})
	require.NoError(t, err)
	require.Len(t, mdat, 1)
	require.Equal(t, uint64(32), mdat[0].Offset)
	require.Equal(t, mdatSize, mdat[0].Size)

	audioOffset := uint64(48) + 65*sampleSize

	co64 := extract[*mp4.Co64](t, r, stblPath(mp4.BoxTypeCo64())...)
	require.Len(t, co64, 2)
	require.Equal(t, []uint64{48, audioOffset + 5}, co64[0].ChunkOffset)
	require.Equal(t, []uint64{audioOffset}, co64[1].ChunkOffset)

	stco := extract[*mp4.Stco](t, r, stblPath(mp4.BoxTypeStco())...)
	require.Empty(t, stco)

	stsz := extract[*mp4.Stsz](t, r, stblPath(mp4.BoxTypeStsz())...)
	require.Len(t, stsz, 2)
	require.Len(t, stsz[0].EntrySize, 66)
	require.Equal(t, uint32(sampleSize), stsz[0].EntrySize[0])
	require.Equal(t, uint32(10), stsz[0].EntrySize[65])

	// the last samples are readable at the announced offsets
	buf := make([]byte, 15)
	_, err = r.ReadAt(buf, int64(audioOffset))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, buf[:5])
	require.Equal(t, bytes.Repeat([]byte{10}, 10), buf[5:])
}

func TestWriterVideoOnly(t *testing.T) {
	video, _ := testParams(t)

	var buf seekablebuffer.Buffer
	w, err := NewWriter(&buf, video, nil)
	require.NoError(t, err)

	err = w.WriteAudioFrame(audioFrame(0))
	require.EqualError(t, err, "audio track is not enabled")

	err = w.WriteVideoFrame(videoFrame(0, true, 10))
	require.NoError(t, err)

	err = w.Finish()
	require.NoError(t, err)

	err = w.WriteVideoFrame(videoFrame(3000, true, 10))
	require.EqualError(t, err, "writer is finished")

	err = w.Finish()
	require.EqualError(t, err, "writer is finished")

	r := bytes.NewReader(buf.Bytes())

	mvhd := extract[*mp4.Mvhd](t, r, mp4.BoxTypeMoov(), mp4.BoxTypeMvhd())
	require.Len(t, mvhd, 1)
	require.Equal(t, uint32(0), mvhd[0].DurationV0)
	require.Equal(t, uint32(2), mvhd[0].NextTrackID)

	elst := extract[*mp4.Elst](t, r, mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeEdts(), mp4.BoxTypeElst())
	require.Empty(t, elst)
}

func TestWriterErrors(t *testing.T) {
	video, _ := testParams(t)

	t.Run("no tracks", func(t *testing.T) {
		var buf seekablebuffer.Buffer
		_, err := NewWriter(&buf, nil, nil)
		require.EqualError(t, err, "at least one track is needed")
	})

	t.Run("parameter change", func(t *testing.T) {
		var buf seekablebuffer.Buffer
		w, err := NewWriter(&buf, video, nil)
		require.NoError(t, err)

		changed := *video
		changed.AVCDecoderConfig = append([]byte(nil), video.AVCDecoderConfig...)
		changed.AVCDecoderConfig[len(changed.AVCDecoderConfig)-1]++

		fr := videoFrame(0, true, 10)
		fr.NewParameters = &changed

		err = w.WriteVideoFrame(fr)
		require.EqualError(t, err, "video parameters changed, this is not supported")

		// identical parameters are accepted
		fr.NewParameters = video
		err = w.WriteVideoFrame(fr)
		require.NoError(t, err)
	})

	t.Run("clock rate change", func(t *testing.T) {
		var buf seekablebuffer.Buffer
		w, err := NewWriter(&buf, video, nil)
		require.NoError(t, err)

		err = w.WriteVideoFrame(videoFrame(0, true, 10))
		require.NoError(t, err)

		fr := videoFrame(3000, true, 10)
		fr.Timestamp.ClockRate = 1000
		err = w.WriteVideoFrame(fr)
		require.EqualError(t, err, "clock rate changed from 90000 to 1000")
	})

	t.Run("timestamp going backwards", func(t *testing.T) {
		var buf seekablebuffer.Buffer
		w, err := NewWriter(&buf, video, nil)
		require.NoError(t, err)

		err = w.WriteVideoFrame(videoFrame(3000, true, 10))
		require.NoError(t, err)

		err = w.WriteVideoFrame(videoFrame(0, true, 10))
		require.EqualError(t, err, "timestamp went backwards, from 3000 to 0")
	})
}
