// Package rtpvalidator contains a RTP packet validator, that checks SSRC,
// sequence numbers and timestamps of the packets of a stream.
package rtpvalidator

import (
	"fmt"

	"github.com/pion/rtp"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/conn"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
)

// MaxInitialSeqSkip is the maximum gap tolerated between the sequence number
// announced in RTP-Info and the one of the first packet.
// Some cameras start slightly ahead, probably when an IDR frame is produced
// while PLAY is being processed.
const MaxInitialSeqSkip = 128

// maxLoss is the maximum sequence number gap that is interpreted as loss.
// Greater gaps are interpreted as sequence numbers going backwards.
const maxLoss = 0x8000

// Packet is a validated RTP packet.
type Packet struct {
	// context of the interleaved frame that carried the packet
	Ctx conn.Context

	// stream index
	Stream int

	Timestamp      rtptime.Timestamp
	SSRC           uint32
	SequenceNumber uint16

	// number of packets lost before this one
	Loss uint16

	// marker bit
	Mark bool

	// payload, without RTP header and padding
	Payload []byte
}

// Validator validates the RTP packets of a stream.
type Validator struct {
	stream      int
	payloadType uint8
	timeline    *rtptime.Timeline
	ssrc        *uint32
	nextSeq     *uint16
	maxSeqSkip  uint16
}

// New allocates a Validator.
// ssrc and initialSeq are the values announced by the server, if any.
func New(
	stream int,
	payloadType uint8,
	timeline *rtptime.Timeline,
	ssrc *uint32,
	initialSeq *uint16,
) *Validator {
	v := &Validator{
		stream:      stream,
		payloadType: payloadType,
		timeline:    timeline,
		maxSeqSkip:  MaxInitialSeqSkip,
	}

	if ssrc != nil {
		tmp := *ssrc
		v.ssrc = &tmp
	}

	if initialSeq != nil {
		tmp := *initialSeq
		v.nextSeq = &tmp
	}

	return v
}

// stripNestedInterleavedHeader removes a interleaved frame header found inside
// an interleaved frame, produced by at least one buggy firmware.
// A '$' can't be the first byte of a RTP packet, since the version would be 0.
func stripNestedInterleavedHeader(data []byte) []byte {
	if len(data) >= 4 && data[0] == base.InterleavedFrameMagicByte {
		return data[4:]
	}
	return data
}

// Process validates the content of an interleaved frame and returns the corresponding Packet.
// Any error is fatal for the stream.
func (v *Validator) Process(ctx conn.Context, data []byte) (*Packet, error) {
	data = stripNestedInterleavedHeader(data)

	var pkt rtp.Packet
	err := pkt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt RTP packet: %w", err)
	}

	if pkt.PayloadType != v.payloadType {
		return nil, fmt.Errorf("expected payload type %d, got %d (seq=%d)",
			v.payloadType, pkt.PayloadType, pkt.SequenceNumber)
	}

	if v.ssrc != nil && pkt.SSRC != *v.ssrc {
		return nil, fmt.Errorf("expected SSRC %08x, got %08x (seq=%d)",
			*v.ssrc, pkt.SSRC, pkt.SequenceNumber)
	}

	var loss uint16
	if v.nextSeq != nil {
		loss = pkt.SequenceNumber - *v.nextSeq

		if loss > maxLoss {
			return nil, fmt.Errorf("expected seq=%d, got seq=%d, sequence went backwards",
				*v.nextSeq, pkt.SequenceNumber)
		}

		if loss <= v.maxSeqSkip {
			loss = 0
		}
	}

	ts, err := v.timeline.AdvanceTo(pkt.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp (seq=%d): %w", pkt.SequenceNumber, err)
	}

	if len(pkt.Payload) == 0 {
		return nil, fmt.Errorf("empty payload (seq=%d)", pkt.SequenceNumber)
	}

	ssrc := pkt.SSRC
	v.ssrc = &ssrc
	nextSeq := pkt.SequenceNumber + 1
	v.nextSeq = &nextSeq
	v.maxSeqSkip = 0

	return &Packet{
		Ctx:            ctx,
		Stream:         v.stream,
		Timestamp:      ts,
		SSRC:           pkt.SSRC,
		SequenceNumber: pkt.SequenceNumber,
		Loss:           loss,
		Mark:           pkt.Marker,
		Payload:        pkt.Payload,
	}, nil
}
