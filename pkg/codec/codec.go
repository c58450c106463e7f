// Package codec contains demuxers that turn validated RTP packets into
// frames, and the codec parameters extracted from SDP and in-band data.
package codec

import (
	"fmt"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/conn"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
	"github.com/nvrcore/camrtsp/pkg/rtpvalidator"
)

// Parameters are the parameters of a codec.
// It is implemented by *H264Parameters, *AACParameters, *MessageParameters
// and *SimpleAudioParameters only.
type Parameters interface {
	isParameters()
}

// Item is an output of a Demuxer.
// It is one of *VideoFrame, *AudioFrame, *MessageFrame or *ParameterChange.
type Item interface{}

// VideoFrame is a H264 access unit.
type VideoFrame struct {
	// context of the first packet of the frame
	Ctx conn.Context

	// stream index
	Stream int

	Timestamp rtptime.Timestamp

	// packets lost since the previous frame
	Loss uint16

	// parameters that are in effect starting from this frame,
	// when they changed.
	NewParameters *H264Parameters

	// whether the frame is an IDR picture
	IsRandomAccessPoint bool

	// whether no other frame references this one
	IsDisposable bool

	// picture NALU, prefixed by its 4-byte big-endian length (AVCC format)
	Data []byte
}

// AudioFrame is an audio access unit.
type AudioFrame struct {
	Ctx       conn.Context
	Stream    int
	Timestamp rtptime.Timestamp
	Loss      uint16

	// duration, in clock rate units
	FrameLength uint32

	Data []byte
}

// MessageFrame is an application message, like an ONVIF metadata document.
type MessageFrame struct {
	Ctx       conn.Context
	Stream    int
	Timestamp rtptime.Timestamp
	Loss      uint16
	Data      []byte
}

// ParameterChange is emitted when in-band parameters replace the current ones.
type ParameterChange struct {
	Stream     int
	Parameters Parameters
}

type demuxer interface {
	push(pkt *rtpvalidator.Packet) error
	pull() (Item, error)
	parameters() Parameters
}

// Demuxer reassembles the packets of a stream into frames.
// The set of supported codecs is closed: H264, AAC, ONVIF metadata and
// fixed-size audio codecs.
type Demuxer struct {
	inner demuxer
}

// New allocates a Demuxer from the description of a stream.
func New(
	media string,
	encodingName string,
	clockRate uint32,
	channels *uint16,
	fmtp string,
) (*Demuxer, error) {
	params, err := ParseParameters(media, encodingName, clockRate, channels, fmtp)
	if err != nil {
		return nil, err
	}

	return NewFromParameters(params)
}

// NewFromParameters allocates a Demuxer from already-parsed parameters.
func NewFromParameters(params Parameters) (*Demuxer, error) {
	switch params := params.(type) {
	case *H264Parameters:
		return &Demuxer{inner: newH264Demuxer(params)}, nil

	case *AACParameters:
		return &Demuxer{inner: newAACDemuxer(params)}, nil

	case *MessageParameters:
		return &Demuxer{inner: newONVIFDemuxer(params)}, nil

	case *SimpleAudioParameters:
		return &Demuxer{inner: newSimpleAudioDemuxer(params)}, nil

	case nil:
		return nil, fmt.Errorf("unsupported codec")
	}

	return nil, fmt.Errorf("unsupported parameters %T", params)
}

// Push feeds a packet into the demuxer.
// All pending items must have been pulled before calling it again.
func (d *Demuxer) Push(pkt *rtpvalidator.Packet) error {
	return d.inner.push(pkt)
}

// Pull returns the next ready item, or nil if nothing is ready.
func (d *Demuxer) Pull() (Item, error) {
	return d.inner.pull()
}

// Parameters returns the current parameters of the stream.
func (d *Demuxer) Parameters() Parameters {
	return d.inner.parameters()
}

// ParseParameters parses the parameters of a stream from its SDP attributes.
// It returns nil parameters when the codec is not supported, since a
// presentation can contain streams that are never set up.
func ParseParameters(
	media string,
	encodingName string,
	clockRate uint32,
	channels *uint16,
	fmtp string,
) (Parameters, error) {
	encodingName = strings.ToLower(encodingName)

	switch {
	case media == "video" && encodingName == "h264":
		if clockRate != 90000 {
			return nil, fmt.Errorf("H264 clock rate must be 90000, got %d", clockRate)
		}
		if fmtp == "" {
			return nil, fmt.Errorf("H264 requires format-specific params")
		}
		return ParseH264FMTP(fmtp)

	case media == "audio" && encodingName == "mpeg4-generic":
		return ParseAACFMTP(fmtp)

	case media == "application" && encodingName == "vnd.onvif.metadata",
		media == "application" && encodingName == "vnd.onvif.metadata.gzip",
		media == "application" && encodingName == "vnd.onvif.metadata.exi.onvif",
		media == "application" && encodingName == "vnd.onvif.metadata.exi.ext":
		return newMessageParameters(encodingName), nil

	case media == "audio":
		params, ok := newSimpleAudioParameters(encodingName, clockRate, channels)
		if ok {
			return params, nil
		}
	}

	return nil, nil
}

// DecodeFMTP decodes a fmtp attribute into a map with lower-case keys.
func DecodeFMTP(enc string) map[string]string {
	if enc == "" {
		return nil
	}

	ret := make(map[string]string)

	for _, kv := range strings.Split(enc, ";") {
		kv = strings.Trim(kv, " ")

		// some cameras leave a trailing ';'
		if len(kv) == 0 {
			continue
		}

		tmp := strings.SplitN(kv, "=", 2)
		if len(tmp) != 2 {
			continue
		}

		ret[strings.ToLower(strings.TrimSpace(tmp[0]))] = strings.TrimSpace(tmp[1])
	}

	return ret
}
