package codec

import (
	"fmt"

	"github.com/nvrcore/camrtsp/pkg/rtpvalidator"
)

// Specification: RFC 3551, section 4.5
var simpleAudioBitsPerSample = map[string]uint32{
	"pcmu":    8,
	"pcma":    8,
	"l8":      8,
	"l16":     16,
	"g726-16": 2,
	"g726-24": 3,
	"g726-32": 4,
	"g726-40": 5,
	"dvi4":    4,
}

// SimpleAudioParameters are the parameters of an audio codec whose
// samples have a fixed size, like G711.
type SimpleAudioParameters struct {
	EncodingName  string
	ClockRate     uint32
	Channels      uint16
	BitsPerSample uint32
}

func (*SimpleAudioParameters) isParameters() {}

func newSimpleAudioParameters(encodingName string, clockRate uint32, channels *uint16) (*SimpleAudioParameters, bool) {
	bps := simpleAudioBitsPerSample[encodingName]
	if bps == 0 {
		return nil, false
	}

	p := &SimpleAudioParameters{
		EncodingName:  encodingName,
		ClockRate:     clockRate,
		Channels:      1,
		BitsPerSample: bps,
	}

	if channels != nil {
		if *channels == 0 {
			return nil, false
		}
		p.Channels = *channels
	}

	return p, true
}

// each packet is a frame.
type simpleAudioDemuxer struct {
	params  *SimpleAudioParameters
	pending *AudioFrame
}

func newSimpleAudioDemuxer(params *SimpleAudioParameters) *simpleAudioDemuxer {
	return &simpleAudioDemuxer{
		params: params,
	}
}

func (d *simpleAudioDemuxer) parameters() Parameters {
	return d.params
}

func (d *simpleAudioDemuxer) push(pkt *rtpvalidator.Packet) error {
	if d.pending != nil {
		return fmt.Errorf("push called with a frame still pending")
	}

	if len(pkt.Payload) == 0 {
		return fmt.Errorf("empty payload (seq=%d)", pkt.SequenceNumber)
	}

	bitsPerFrame := d.params.BitsPerSample * uint32(d.params.Channels)
	totalBits := uint32(len(pkt.Payload)) * 8

	if (totalBits % bitsPerFrame) != 0 {
		return fmt.Errorf("payload of %d bytes is not a multiple of the sample size of %d bits (seq=%d)",
			len(pkt.Payload), bitsPerFrame, pkt.SequenceNumber)
	}

	d.pending = &AudioFrame{
		Ctx:         pkt.Ctx,
		Stream:      pkt.Stream,
		Timestamp:   pkt.Timestamp,
		Loss:        pkt.Loss,
		FrameLength: totalBits / bitsPerFrame,
		Data:        pkt.Payload,
	}

	return nil
}

func (d *simpleAudioDemuxer) pull() (Item, error) {
	if d.pending == nil {
		return nil, nil
	}

	fr := d.pending
	d.pending = nil
	return fr, nil
}
