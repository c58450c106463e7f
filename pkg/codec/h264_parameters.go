package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// sample aspect ratios indexed by aspect_ratio_idc.
// Specification: ITU-T H.264, Table E-1
var h264AspectRatios = [...][2]uint32{
	{0, 0},
	{1, 1},
	{12, 11},
	{10, 11},
	{16, 11},
	{40, 33},
	{24, 11},
	{20, 11},
	{32, 11},
	{80, 33},
	{18, 11},
	{15, 11},
	{64, 33},
	{160, 99},
	{4, 3},
	{3, 2},
	{2, 1},
}

const h264ExtendedSAR = 255

// H264Parameters are the parameters of a H264 stream.
type H264Parameters struct {
	// codec in RFC 6381 form, like avc1.4D401E
	RFC6381Codec string

	// width and height, in pixels
	PixelDimensions [2]uint32

	// horizontal and vertical spacing of pixels, when known
	PixelAspectRatio *[2]uint32

	// duration of a frame in seconds, as numerator and denominator, when known.
	// 15 fps is {1, 15}.
	FrameRate *[2]uint32

	SPS []byte
	PPS []byte

	// AVCDecoderConfigurationRecord, ISO 14496-15 section 5.2.4.1
	AVCDecoderConfig []byte
}

func (*H264Parameters) isParameters() {}

// ParseH264FMTP parses H264 parameters from the fmtp attribute of a stream.
// Specification: RFC 6184, section 8.1
func ParseH264FMTP(fmtp string) (*H264Parameters, error) {
	sprop, ok := DecodeFMTP(fmtp)["sprop-parameter-sets"]
	if !ok {
		return nil, fmt.Errorf("sprop-parameter-sets is missing (%v)", fmtp)
	}

	var sps []byte
	var pps []byte

	for _, enc := range strings.Split(sprop, ",") {
		nalu, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", sprop)
		}

		// some cameras ship parameters with Annex-B prefix or suffix
		nalu = bytes.TrimPrefix(nalu, []byte{0, 0, 0, 1})
		nalu = bytes.TrimSuffix(nalu, []byte{0, 0, 0, 1})

		if len(nalu) == 0 {
			return nil, fmt.Errorf("empty NALU in sprop-parameter-sets")
		}

		switch typ := h264.NALUType(nalu[0] & 0x1F); typ {
		case h264.NALUTypeSPS:
			if sps != nil {
				return nil, fmt.Errorf("multiple SPS in sprop-parameter-sets")
			}
			sps = nalu

		case h264.NALUTypePPS:
			if pps != nil {
				return nil, fmt.Errorf("multiple PPS in sprop-parameter-sets")
			}
			pps = nalu

		default:
			return nil, fmt.Errorf("unexpected NALU type in sprop-parameter-sets: %v", typ)
		}
	}

	if sps == nil {
		return nil, fmt.Errorf("SPS is missing from sprop-parameter-sets")
	}

	if pps == nil {
		return nil, fmt.Errorf("PPS is missing from sprop-parameter-sets")
	}

	return NewH264Parameters(sps, pps)
}

// NewH264Parameters builds H264 parameters from a SPS and a PPS.
func NewH264Parameters(sps []byte, pps []byte) (*H264Parameters, error) {
	if len(sps) < 4 {
		return nil, fmt.Errorf("SPS is too short")
	}

	if len(sps) > 0xFFFF || len(pps) > 0xFFFF {
		return nil, fmt.Errorf("parameter set is too big")
	}

	var s h264.SPS
	err := s.Unmarshal(sps)
	if err != nil {
		return nil, fmt.Errorf("invalid SPS: %w", err)
	}

	p := &H264Parameters{
		// profile_idc, constraint flags and level_idc
		RFC6381Codec:    fmt.Sprintf("avc1.%02X%02X%02X", sps[1], sps[2], sps[3]),
		PixelDimensions: [2]uint32{uint32(s.Width()), uint32(s.Height())},
		SPS:             sps,
		PPS:             pps,
	}

	if vui := s.VUI; vui != nil {
		if vui.AspectRatioInfoPresentFlag {
			switch {
			case vui.AspectRatioIdc == h264ExtendedSAR:
				if vui.SarWidth != 0 && vui.SarHeight != 0 {
					p.PixelAspectRatio = &[2]uint32{uint32(vui.SarWidth), uint32(vui.SarHeight)}
				}

			case vui.AspectRatioIdc != 0 && int(vui.AspectRatioIdc) < len(h264AspectRatios):
				ar := h264AspectRatios[vui.AspectRatioIdc]
				p.PixelAspectRatio = &ar
			}
		}

		// a frame lasts two fields
		if ti := vui.TimingInfo; ti != nil && ti.NumUnitsInTick != 0 && ti.TimeScale != 0 {
			p.FrameRate = &[2]uint32{2 * ti.NumUnitsInTick, ti.TimeScale}
		}
	}

	var buf bytes.Buffer
	_, err = mp4.Marshal(&buf, &mp4.AVCDecoderConfiguration{
		AnyTypeBox: mp4.AnyTypeBox{
			Type: mp4.BoxTypeAvcC(),
		},
		ConfigurationVersion:       1,
		Profile:                    sps[1],
		ProfileCompatibility:       sps[2],
		Level:                      sps[3],
		Reserved:                   0x3F,
		LengthSizeMinusOne:         3,
		Reserved2:                  0x07,
		NumOfSequenceParameterSets: 1,
		SequenceParameterSets: []mp4.AVCParameterSet{{
			Length:  uint16(len(sps)),
			NALUnit: sps,
		}},
		NumOfPictureParameterSets: 1,
		PictureParameterSets: []mp4.AVCParameterSet{{
			Length:  uint16(len(pps)),
			NALUnit: pps,
		}},
	}, mp4.Context{})
	if err != nil {
		return nil, fmt.Errorf("unable to build AVCDecoderConfigurationRecord: %w", err)
	}
	p.AVCDecoderConfig = buf.Bytes()

	return p, nil
}
