package description

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/codec"
)

type staticPayloadType struct {
	encodingName string
	clockRate    uint32
	channels     uint16
}

// Specification: RFC 3551, Table 4 and Table 5
var staticPayloadTypes = map[uint8]staticPayloadType{
	0:  {"PCMU", 8000, 1},
	3:  {"GSM", 8000, 1},
	4:  {"G723", 8000, 1},
	5:  {"DVI4", 8000, 1},
	6:  {"DVI4", 16000, 1},
	7:  {"LPC", 8000, 1},
	8:  {"PCMA", 8000, 1},
	9:  {"G722", 8000, 1},
	10: {"L16", 44100, 2},
	11: {"L16", 44100, 1},
	12: {"QCELP", 8000, 1},
	13: {"CN", 8000, 1},
	14: {"MPA", 90000, 0},
	15: {"G728", 8000, 1},
	16: {"DVI4", 11025, 1},
	17: {"DVI4", 22050, 1},
	18: {"G729", 8000, 1},
	25: {"CelB", 90000, 0},
	26: {"JPEG", 90000, 0},
	28: {"nv", 90000, 0},
	31: {"H261", 90000, 0},
	32: {"MPV", 90000, 0},
	33: {"MP2T", 90000, 0},
	34: {"H263", 90000, 0},
}

// StreamState is the state of a stream.
type StreamState int

// states.
const (
	// the stream has not been set up.
	StreamStateUninit StreamState = iota

	// the stream has been set up.
	StreamStateInit
)

// String implements fmt.Stringer.
func (s StreamState) String() string {
	switch s {
	case StreamStateUninit:
		return "uninit"
	case StreamStateInit:
		return "init"
	}
	return "unknown"
}

// Stream is a media section of a presentation.
type Stream struct {
	// media type, like video, audio or application
	Media string

	// encoding name, as written in rtpmap, like H264
	EncodingName string

	// payload type of the first format of the media
	PayloadType uint8

	ClockRate uint32

	// channel count, when specified
	Channels *uint16

	// absolute URL of the stream
	Control *base.URL

	// raw fmtp attribute, without payload type
	FormatSpecificParams string

	// codec parameters. It is nil when the codec is not supported.
	Params codec.Parameters

	// error that prevented the parsing of codec parameters, if any.
	// Streams with this field set can't be set up.
	ParamsError error

	State StreamState

	// filled by SETUP and PLAY, when provided by the server
	SSRC           *uint32
	InitialSeq     *uint16
	InitialRTPTime *uint32
}

func getAttribute(attributes []psdp.Attribute, key string) (string, bool) {
	for _, attr := range attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// returns the value of an attribute like rtpmap or fmtp, which starts
// with a payload type.
func getFormatAttribute(attributes []psdp.Attribute, payloadType string, key string) (string, bool) {
	for _, attr := range attributes {
		if attr.Key == key {
			pt, v, ok := strings.Cut(strings.TrimSpace(attr.Value), " ")
			if ok && pt == payloadType {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}

// Specification: RFC 8866, section 6.6
func parseRTPMap(v string) (string, uint32, *uint16, error) {
	encodingName, rest, ok := strings.Cut(v, "/")
	if !ok {
		return "", 0, nil, fmt.Errorf("invalid rtpmap (%v)", v)
	}

	clockRateStr, channelsStr, hasChannels := strings.Cut(rest, "/")

	tmp, err := strconv.ParseUint(clockRateStr, 10, 32)
	if err != nil {
		return "", 0, nil, fmt.Errorf("invalid clock rate in rtpmap (%v)", v)
	}
	clockRate := uint32(tmp)

	if clockRate == 0 {
		return "", 0, nil, fmt.Errorf("invalid clock rate in rtpmap (%v)", v)
	}

	if !hasChannels {
		return encodingName, clockRate, nil, nil
	}

	tmp, err = strconv.ParseUint(channelsStr, 10, 16)
	if err != nil {
		return "", 0, nil, fmt.Errorf("invalid channels in rtpmap (%v)", v)
	}
	channels := uint16(tmp)

	return encodingName, clockRate, &channels, nil
}

func (s *Stream) unmarshal(baseURL *base.URL, md *psdp.MediaDescription, single bool) error {
	// Specification: RFC 8866, section 5.14
	// variants like TCP/RTP/AVP are accepted too.
	if !slices.Contains(md.MediaName.Protos, "RTP") {
		return fmt.Errorf("expected a RTP-based proto, got %v", strings.Join(md.MediaName.Protos, "/"))
	}

	s.Media = md.MediaName.Media

	// the first format is the default one
	if len(md.MediaName.Formats) == 0 {
		return fmt.Errorf("payload type is missing")
	}
	ptStr := md.MediaName.Formats[0]

	tmp, err := strconv.ParseUint(ptStr, 10, 7)
	if err != nil {
		return fmt.Errorf("invalid payload type (%v)", ptStr)
	}
	s.PayloadType = uint8(tmp)

	rtpMap, ok := getFormatAttribute(md.Attributes, ptStr, "rtpmap")
	if ok {
		s.EncodingName, s.ClockRate, s.Channels, err = parseRTPMap(rtpMap)
		if err != nil {
			return err
		}
	} else {
		st, ok := staticPayloadTypes[s.PayloadType]
		if !ok {
			return fmt.Errorf("rtpmap is missing for payload type %d", s.PayloadType)
		}

		s.EncodingName = st.encodingName
		s.ClockRate = st.clockRate
		if st.channels != 0 {
			ch := st.channels
			s.Channels = &ch
		}
	}

	s.FormatSpecificParams, _ = getFormatAttribute(md.Attributes, ptStr, "fmtp")

	control, ok := getAttribute(md.Attributes, "control")
	switch {
	case ok:
		s.Control, err = JoinControl(baseURL, control)
		if err != nil {
			return err
		}

	// Specification: RFC 2326, appendix C.1.1
	case single:
		s.Control = baseURL.Clone()

	default:
		return fmt.Errorf("control attribute is missing")
	}

	params, err := codec.ParseParameters(s.Media, s.EncodingName, s.ClockRate, s.Channels, s.FormatSpecificParams)
	if err != nil {
		// H264 parameters are required to write the output container
		if strings.EqualFold(s.EncodingName, "h264") {
			return err
		}
		s.ParamsError = err
	} else {
		s.Params = params
	}

	s.State = StreamStateUninit

	return nil
}
