package codec

import (
	"fmt"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/rtptime"
	"github.com/nvrcore/camrtsp/pkg/rtpvalidator"
)

// CompressionType is the compression of ONVIF metadata messages.
type CompressionType int

// compression types.
const (
	CompressionTypeUncompressed CompressionType = iota
	CompressionTypeGzip
	CompressionTypeEXIDefault
	CompressionTypeEXIInBand
)

// String implements fmt.Stringer.
func (c CompressionType) String() string {
	switch c {
	case CompressionTypeUncompressed:
		return "uncompressed"
	case CompressionTypeGzip:
		return "gzip"
	case CompressionTypeEXIDefault:
		return "exi"
	case CompressionTypeEXIInBand:
		return "exi-in-band"
	}
	return "unknown"
}

// MessageParameters are the parameters of an ONVIF metadata stream.
type MessageParameters struct {
	CompressionType CompressionType
}

func (*MessageParameters) isParameters() {}

// Specification: ONVIF Streaming Specification, section 5.2.1.1
func newMessageParameters(encodingName string) *MessageParameters {
	p := &MessageParameters{}

	switch strings.ToLower(encodingName) {
	case "vnd.onvif.metadata.gzip":
		p.CompressionType = CompressionTypeGzip

	case "vnd.onvif.metadata.exi.onvif":
		p.CompressionType = CompressionTypeEXIDefault

	case "vnd.onvif.metadata.exi.ext":
		p.CompressionType = CompressionTypeEXIInBand
	}

	return p
}

type onvifState interface {
	isONVIFState()
}

// no message in progress.
type onvifStateIdle struct{}

// a message spans several packets; it ends with a marked packet.
type onvifStateInProgress struct {
	first     *rtpvalidator.Packet
	timestamp rtptime.Timestamp
	loss      uint16
	buf       []byte
}

// a marked packet completed a message.
type onvifStateReady struct {
	frame *MessageFrame
}

func (onvifStateIdle) isONVIFState()        {}
func (*onvifStateInProgress) isONVIFState() {}
func (*onvifStateReady) isONVIFState()      {}

// messages end with a marked packet.
type onvifDemuxer struct {
	params *MessageParameters
	state  onvifState

	// size of the biggest message, used to size the next buffers
	highWater int
}

func newONVIFDemuxer(params *MessageParameters) *onvifDemuxer {
	return &onvifDemuxer{
		params: params,
		state:  onvifStateIdle{},
	}
}

func (d *onvifDemuxer) parameters() Parameters {
	return d.params
}

func (d *onvifDemuxer) push(pkt *rtpvalidator.Packet) error {
	prev := d.state
	d.state = onvifStateIdle{}

	switch st := prev.(type) {
	case *onvifStateReady:
		return fmt.Errorf("push called with a message still pending")

	case *onvifStateInProgress:
		if st.timestamp.Value != pkt.Timestamp.Value {
			return fmt.Errorf("timestamp changed from %v to %v (seq=%d) with message in progress",
				st.timestamp, pkt.Timestamp, pkt.SequenceNumber)
		}

		st.buf = append(st.buf, pkt.Payload...)
		st.loss += pkt.Loss

		if !pkt.Mark {
			d.state = st
			return nil
		}

		d.highWater = max(d.highWater, len(st.buf))
		d.state = &onvifStateReady{frame: &MessageFrame{
			Ctx:       st.first.Ctx,
			Stream:    st.first.Stream,
			Timestamp: st.timestamp,
			Loss:      st.loss,
			Data:      st.buf,
		}}
		return nil
	}

	if pkt.Mark {
		d.state = &onvifStateReady{frame: &MessageFrame{
			Ctx:       pkt.Ctx,
			Stream:    pkt.Stream,
			Timestamp: pkt.Timestamp,
			Loss:      pkt.Loss,
			Data:      pkt.Payload,
		}}
		return nil
	}

	buf := make([]byte, 0, max(d.highWater, 2*len(pkt.Payload)))
	buf = append(buf, pkt.Payload...)

	d.state = &onvifStateInProgress{
		first:     pkt,
		timestamp: pkt.Timestamp,
		loss:      pkt.Loss,
		buf:       buf,
	}
	return nil
}

func (d *onvifDemuxer) pull() (Item, error) {
	st, ok := d.state.(*onvifStateReady)
	if !ok {
		return nil, nil
	}

	d.state = onvifStateIdle{}
	return st.frame, nil
}
