package codec

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/bits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/nvrcore/camrtsp/pkg/rtpvalidator"
)

// each packet carries exactly one access unit.
// Specification: RFC 3640, section 3.2
type aacDemuxer struct {
	params *AACParameters

	// some cameras wrap AUs into ADTS
	firstAUParsed bool
	adtsMode      bool

	pending *AudioFrame
}

func newAACDemuxer(params *AACParameters) *aacDemuxer {
	return &aacDemuxer{
		params: params,
	}
}

func (d *aacDemuxer) parameters() Parameters {
	return d.params
}

func (d *aacDemuxer) push(pkt *rtpvalidator.Packet) error {
	if d.pending != nil {
		return fmt.Errorf("push called with a frame still pending")
	}

	payload := pkt.Payload

	if len(payload) < 2 {
		return fmt.Errorf("payload is too short for AU-headers-length (seq=%d)", pkt.SequenceNumber)
	}

	// AU-headers-length, in bits
	headersLen := int(uint16(payload[0])<<8 | uint16(payload[1]))
	payload = payload[2:]

	if headersLen != d.params.SizeLength+d.params.IndexLength {
		return fmt.Errorf("unsupported AU-headers-length %d, only a single AU per packet is supported (seq=%d)",
			headersLen, pkt.SequenceNumber)
	}

	pos := 0

	size, err := bits.ReadBits(payload, &pos, d.params.SizeLength)
	if err != nil {
		return fmt.Errorf("payload is too short for AU-headers (seq=%d)", pkt.SequenceNumber)
	}

	index, err := bits.ReadBits(payload, &pos, d.params.IndexLength)
	if err != nil {
		return fmt.Errorf("payload is too short for AU-headers (seq=%d)", pkt.SequenceNumber)
	}

	if index != 0 {
		return fmt.Errorf("AU-index different than zero is not supported (seq=%d)", pkt.SequenceNumber)
	}

	payload = payload[(headersLen+7)/8:]

	switch {
	case int(size) > len(payload):
		return fmt.Errorf("fragmented AUs are not supported (seq=%d)", pkt.SequenceNumber)

	case int(size) < len(payload):
		return fmt.Errorf("extra data at end of packet (seq=%d)", pkt.SequenceNumber)

	case size == 0:
		return fmt.Errorf("empty AU (seq=%d)", pkt.SequenceNumber)
	}

	if !pkt.Mark {
		return fmt.Errorf("marker bit must be set on a non-fragmented AU (seq=%d)", pkt.SequenceNumber)
	}

	au, err := d.removeADTS(payload)
	if err != nil {
		return err
	}

	if len(au) > mpeg4audio.MaxAccessUnitSize {
		return fmt.Errorf("access unit size (%d) is too big, maximum is %d",
			len(au), mpeg4audio.MaxAccessUnitSize)
	}

	d.pending = &AudioFrame{
		Ctx:         pkt.Ctx,
		Stream:      pkt.Stream,
		Timestamp:   pkt.Timestamp,
		Loss:        pkt.Loss,
		FrameLength: d.params.FrameLength,
		Data:        au,
	}

	return nil
}

func (d *aacDemuxer) removeADTS(au []byte) ([]byte, error) {
	if !d.firstAUParsed {
		d.firstAUParsed = true

		if len(au) >= 2 && au[0] == 0xFF && (au[1]&0xF0) == 0xF0 {
			var pkts mpeg4audio.ADTSPackets
			err := pkts.Unmarshal(au)
			if err == nil && len(pkts) == 1 {
				d.adtsMode = true
				return pkts[0].AU, nil
			}
		}

		return au, nil
	}

	if !d.adtsMode {
		return au, nil
	}

	var pkts mpeg4audio.ADTSPackets
	err := pkts.Unmarshal(au)
	if err != nil {
		return nil, fmt.Errorf("unable to decode ADTS: %w", err)
	}

	if len(pkts) != 1 {
		return nil, fmt.Errorf("multiple ADTS packets are not supported")
	}

	return pkts[0].AU, nil
}

func (d *aacDemuxer) pull() (Item, error) {
	if d.pending == nil {
		return nil, nil
	}

	fr := d.pending
	d.pending = nil
	return fr, nil
}
