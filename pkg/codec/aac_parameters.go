package codec

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/bits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"github.com/nvrcore/camrtsp/internal/mp4writer"
)

// Specification: ISO 14496-1, Table 5 and Table 6
const (
	objectTypeIndicationAudioISO14496part3 = 0x40
	streamTypeAudioStream                  = 0x05
)

// Specification: ISO 14496-3, Table 1.16
var aacSamplingFrequencies = [...]uint32{
	96000,
	88200,
	64000,
	48000,
	44100,
	32000,
	24000,
	22050,
	16000,
	12000,
	11025,
	8000,
	7350,
}

// AudioSpecificConfig is the subset of a MPEG-4 AudioSpecificConfig needed
// to demux and mux AAC.
// Specification: ISO 14496-3, section 1.6.2.1
type AudioSpecificConfig struct {
	// type of the core stream
	ObjectType mpeg4audio.ObjectType

	// SBR or PS, when signaled explicitly before the core type
	ExtensionObjectType mpeg4audio.ObjectType

	SamplingFrequency uint32
	Channels          uint8

	// samples per frame
	FrameLength uint32
}

func readObjectType(buf []byte, pos *int) (mpeg4audio.ObjectType, error) {
	tmp, err := bits.ReadBits(buf, pos, 5)
	if err != nil {
		return 0, err
	}

	if tmp == 31 {
		tmp, err = bits.ReadBits(buf, pos, 6)
		if err != nil {
			return 0, err
		}
		tmp += 32
	}

	return mpeg4audio.ObjectType(tmp), nil
}

// Unmarshal decodes an AudioSpecificConfig.
func (c *AudioSpecificConfig) Unmarshal(buf []byte) error {
	pos := 0

	var err error
	c.ObjectType, err = readObjectType(buf, &pos)
	if err != nil {
		return err
	}

	tmp, err := bits.ReadBits(buf, &pos, 4)
	if err != nil {
		return err
	}

	switch {
	case tmp == 0x0F:
		tmp, err = bits.ReadBits(buf, &pos, 24)
		if err != nil {
			return err
		}
		c.SamplingFrequency = uint32(tmp)

	case int(tmp) < len(aacSamplingFrequencies):
		c.SamplingFrequency = aacSamplingFrequencies[tmp]

	default:
		return fmt.Errorf("reserved sampling frequency index %d", tmp)
	}

	tmp, err = bits.ReadBits(buf, &pos, 4)
	if err != nil {
		return err
	}

	switch {
	case tmp == 0:
		return fmt.Errorf("channel configuration 0 is not supported")

	case tmp >= 8:
		return fmt.Errorf("reserved channel configuration %d", tmp)
	}
	c.Channels = uint8(tmp)

	c.ExtensionObjectType = 0

	if c.ObjectType == mpeg4audio.ObjectTypeSBR || c.ObjectType == mpeg4audio.ObjectTypePS {
		c.ExtensionObjectType = c.ObjectType

		// extension sampling frequency
		tmp, err = bits.ReadBits(buf, &pos, 4)
		if err != nil {
			return err
		}

		if tmp == 0x0F {
			_, err = bits.ReadBits(buf, &pos, 24)
			if err != nil {
				return err
			}
		}

		c.ObjectType, err = readObjectType(buf, &pos)
		if err != nil {
			return err
		}

		// ER BSAC extension channel configuration
		if c.ObjectType == 22 {
			_, err = bits.ReadBits(buf, &pos, 4)
			if err != nil {
				return err
			}
		}
	}

	// object types that use GASpecificConfig
	switch c.ObjectType {
	case 1, 2, 3, 4, 6, 7, 17, 19, 20, 21, 22, 23:
	default:
		return fmt.Errorf("unsupported object type %d", c.ObjectType)
	}

	frameLengthFlag, err := bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	switch {
	case c.ObjectType == 3 && frameLengthFlag:
		return fmt.Errorf("frame length flag must be false for AAC SSR")

	case c.ObjectType == 3:
		c.FrameLength = 256

	case c.ObjectType == 23 && frameLengthFlag:
		c.FrameLength = 480

	case c.ObjectType == 23:
		c.FrameLength = 512

	case frameLengthFlag:
		c.FrameLength = 960

	default:
		c.FrameLength = 1024
	}

	return nil
}

// AACParameters are the parameters of a MPEG-4 audio stream.
type AACParameters struct {
	Config AudioSpecificConfig

	// AudioSpecificConfig, as found in SDP
	RawConfig []byte

	// codec in RFC 6381 form, like mp4a.40.2
	RFC6381Codec string

	// MP4AudioSampleEntry box, ISO 14496-14 section 5.6.1
	SampleEntry []byte

	// samples per frame
	FrameLength uint32

	// AU-header format
	SizeLength       int
	IndexLength      int
	IndexDeltaLength int
}

func (*AACParameters) isParameters() {}

func parseAUHeaderField(fmtp map[string]string, key string) (int, error) {
	val, ok := fmtp[key]
	if !ok {
		return 0, nil
	}

	tmp, err := strconv.ParseUint(val, 10, 31)
	if err != nil || tmp > 32 {
		return 0, fmt.Errorf("invalid %s (%v)", key, val)
	}

	return int(tmp), nil
}

// ParseAACFMTP parses AAC parameters from the fmtp attribute of a stream.
// Only the AAC-hbr and AAC-lbr modes are supported.
// Specification: RFC 3640, section 4.1
func ParseAACFMTP(fmtp string) (*AACParameters, error) {
	m := DecodeFMTP(fmtp)

	p := &AACParameters{}

	var err error
	p.SizeLength, err = parseAUHeaderField(m, "sizelength")
	if err != nil {
		return nil, err
	}

	p.IndexLength, err = parseAUHeaderField(m, "indexlength")
	if err != nil {
		return nil, err
	}

	p.IndexDeltaLength, err = parseAUHeaderField(m, "indexdeltalength")
	if err != nil {
		return nil, err
	}

	mode := m["mode"]

	switch {
	case strings.EqualFold(mode, "AAC-hbr"):
		if p.SizeLength != 13 || p.IndexLength != 3 || p.IndexDeltaLength != 3 {
			return nil, fmt.Errorf("unexpected sizelength=%d indexlength=%d indexdeltalength=%d for mode %s",
				p.SizeLength, p.IndexLength, p.IndexDeltaLength, mode)
		}

	case strings.EqualFold(mode, "AAC-lbr"):
		if p.SizeLength != 6 || p.IndexLength != 2 || p.IndexDeltaLength != 2 {
			return nil, fmt.Errorf("unexpected sizelength=%d indexlength=%d indexdeltalength=%d for mode %s",
				p.SizeLength, p.IndexLength, p.IndexDeltaLength, mode)
		}

	default:
		return nil, fmt.Errorf("unsupported AAC mode (%v)", mode)
	}

	enc, ok := m["config"]
	if !ok {
		return nil, fmt.Errorf("config is missing (%v)", fmtp)
	}

	p.RawConfig, err = hex.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("invalid AAC config (%v)", enc)
	}

	err = p.Config.Unmarshal(p.RawConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid AAC config (%v): %w", enc, err)
	}

	p.FrameLength = p.Config.FrameLength

	// Specification: RFC 6381, section 3.3
	// the signaled type is used, that is SBR or PS when present
	objectType := p.Config.ObjectType
	if p.Config.ExtensionObjectType != 0 {
		objectType = p.Config.ExtensionObjectType
	}
	p.RFC6381Codec = fmt.Sprintf("mp4a.40.%d", objectType)

	p.SampleEntry, err = marshalMP4ASampleEntry(&p.Config, p.RawConfig)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func marshalMP4ASampleEntry(c *AudioSpecificConfig, raw []byte) ([]byte, error) {
	// the sample rate field is a 16.16 fixed-point number
	if c.SamplingFrequency > 0xFFFF {
		return nil, fmt.Errorf("sampling frequency %d is not supported", c.SamplingFrequency)
	}

	// ISO 13818-7 defines the decoder input buffer as 6144 bits per channel
	bufferSize := (6144 / 8) * uint32(c.Channels)
	maxBitrate := (6144 / 1024) * uint32(c.Channels) * c.SamplingFrequency

	var buf seekablebuffer.Buffer
	w := mp4writer.New(&buf)

	_, err := w.WriteBoxStart(&mp4.AudioSampleEntry{ // <mp4a>
		SampleEntry: mp4.SampleEntry{
			AnyTypeBox: mp4.AnyTypeBox{
				Type: mp4.BoxTypeMp4a(),
			},
			DataReferenceIndex: 1,
		},
		ChannelCount: uint16(c.Channels),
		SampleSize:   16,
		SampleRate:   c.SamplingFrequency << 16,
	})
	if err != nil {
		return nil, err
	}

	_, err = w.WriteBox(&mp4.Esds{ // <esds/>
		Descriptors: []mp4.Descriptor{
			{
				Tag:          mp4.ESDescrTag,
				Size:         32 + uint32(len(raw)),
				ESDescriptor: &mp4.ESDescriptor{},
			},
			{
				Tag:  mp4.DecoderConfigDescrTag,
				Size: 18 + uint32(len(raw)),
				DecoderConfigDescriptor: &mp4.DecoderConfigDescriptor{
					ObjectTypeIndication: objectTypeIndicationAudioISO14496part3,
					StreamType:           streamTypeAudioStream,
					Reserved:             true,
					BufferSizeDB:         bufferSize,
					MaxBitrate:           maxBitrate,
					AvgBitrate:           0, // variable bitrate
				},
			},
			{
				Tag:  mp4.DecSpecificInfoTag,
				Size: uint32(len(raw)),
				Data: raw,
			},
			{
				Tag:  mp4.SLConfigDescrTag,
				Size: 1,
				Data: []byte{0x02},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	err = w.WriteBoxEnd() // </mp4a>
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
