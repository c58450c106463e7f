package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/nvrcore/camrtsp/pkg/conn"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
	"github.com/nvrcore/camrtsp/pkg/rtpvalidator"
)

type h264AccessUnit struct {
	ctx       conn.Context
	stream    int
	timestamp rtptime.Timestamp
	loss      uint16

	newSPS  []byte
	newPPS  []byte
	changed *H264Parameters

	// a single slice NALU is supported
	picture []byte
}

func (au *h264AccessUnit) addNALU(params *H264Parameters, nalu []byte) error {
	switch h264.NALUType(nalu[0] & 0x1F) {
	case h264.NALUTypeSPS:
		if au.newSPS != nil {
			return fmt.Errorf("multiple SPS in access unit")
		}
		if !bytes.Equal(nalu, params.SPS) {
			au.newSPS = nalu
		}

	case h264.NALUTypePPS:
		if au.newPPS != nil {
			return fmt.Errorf("multiple PPS in access unit")
		}
		if !bytes.Equal(nalu, params.PPS) {
			au.newPPS = nalu
		}

	case h264.NALUTypeIDR, h264.NALUTypeNonIDR:
		if au.picture != nil {
			return fmt.Errorf("multiple slice NALUs in access unit are not supported")
		}
		au.picture = nalu
	}

	return nil
}

type h264State interface {
	isH264State()
}

// no access unit in progress.
type h264StateNew struct{}

// an access unit is in progress. It ends with a marked packet or
// when a packet with a different timestamp arrives.
type h264StatePreMark struct {
	au *h264AccessUnit

	// FU-A in progress, if any
	fragment []byte
}

// a marked packet closed the access unit with the given timestamp.
type h264StatePostMark struct {
	timestamp rtptime.Timestamp
}

func (h264StateNew) isH264State()      {}
func (*h264StatePreMark) isH264State() {}
func (h264StatePostMark) isH264State() {}

// finds access unit boundaries and produces unfragmented NALUs.
// Specification: RFC 6184
type h264Demuxer struct {
	params  *H264Parameters
	state   h264State
	pending []*h264AccessUnit

	// size of the biggest reassembled NALU, used to size the next buffers
	fragmentHighWater int
}

func newH264Demuxer(params *H264Parameters) *h264Demuxer {
	return &h264Demuxer{
		params: params,
		state:  h264StateNew{},
	}
}

func (d *h264Demuxer) parameters() Parameters {
	return d.params
}

func newH264AccessUnit(pkt *rtpvalidator.Packet) *h264AccessUnit {
	return &h264AccessUnit{
		ctx:       pkt.Ctx,
		stream:    pkt.Stream,
		timestamp: pkt.Timestamp,
		loss:      pkt.Loss,
	}
}

func (d *h264Demuxer) push(pkt *rtpvalidator.Packet) error {
	if len(d.pending) != 0 {
		return fmt.Errorf("push called with %d access units still pending", len(d.pending))
	}

	// the state is replaced as a whole. On error, it is left to new.
	prev := d.state
	d.state = h264StateNew{}

	var cur *h264StatePreMark

	switch st := prev.(type) {
	case h264StateNew:
		cur = &h264StatePreMark{au: newH264AccessUnit(pkt)}

	case *h264StatePreMark:
		cur = st
		if cur.au.timestamp.Value != pkt.Timestamp.Value {
			if cur.fragment != nil {
				return fmt.Errorf("timestamp changed from %v to %v in the middle of a fragmented NALU (seq=%d)",
					cur.au.timestamp, pkt.Timestamp, pkt.SequenceNumber)
			}
			d.pending = append(d.pending, cur.au)
			cur.au = newH264AccessUnit(pkt)
		} else {
			cur.au.loss += pkt.Loss
		}

	case h264StatePostMark:
		if st.timestamp.Value == pkt.Timestamp.Value {
			return fmt.Errorf("received packet with timestamp %v after marked packet with the same timestamp (seq=%d)",
				pkt.Timestamp, pkt.SequenceNumber)
		}
		cur = &h264StatePreMark{au: newH264AccessUnit(pkt)}
	}

	data := pkt.Payload
	if len(data) == 0 {
		return fmt.Errorf("empty NALU (seq=%d)", pkt.SequenceNumber)
	}

	header := data[0]
	if (header >> 7) != 0 {
		return fmt.Errorf("NALU header has F bit set (seq=%d)", pkt.SequenceNumber)
	}

	switch typ := h264.NALUType(header & 0x1F); {
	case typ >= 1 && typ <= 23:
		if cur.fragment != nil {
			return fmt.Errorf("non-fragmented NALU while a fragment is in progress (seq=%d)", pkt.SequenceNumber)
		}

		err := cur.au.addNALU(d.params, data)
		if err != nil {
			return err
		}

	case typ == h264.NALUTypeFUA:
		if len(data) < 3 {
			return fmt.Errorf("FU-A is too short (seq=%d)", pkt.SequenceNumber)
		}

		fuHeader := data[1]
		start := (fuHeader & 0x80) != 0
		end := (fuHeader & 0x40) != 0
		reserved := (fuHeader & 0x20) != 0
		naluHeader := (header & 0xE0) | (fuHeader & 0x1F)

		if (start && end) || reserved {
			return fmt.Errorf("invalid FU-A header %08b (seq=%d)", fuHeader, pkt.SequenceNumber)
		}

		if !end && pkt.Mark {
			return fmt.Errorf("FU-A with marker bit and without end bit (seq=%d)", pkt.SequenceNumber)
		}

		switch {
		case start && cur.fragment != nil:
			return fmt.Errorf("FU-A with start bit while a fragment is in progress (seq=%d)", pkt.SequenceNumber)

		case start:
			cur.fragment = make([]byte, 0, max(d.fragmentHighWater, len(data)-1))
			cur.fragment = append(cur.fragment, naluHeader)
			cur.fragment = append(cur.fragment, data[2:]...)

		case cur.fragment != nil:
			if cur.fragment[0] != naluHeader {
				return fmt.Errorf("FU-A has inconsistent NALU header: %08b then %08b (seq=%d)",
					cur.fragment[0], naluHeader, pkt.SequenceNumber)
			}

			cur.fragment = append(cur.fragment, data[2:]...)

			if end {
				nalu := cur.fragment
				cur.fragment = nil
				d.fragmentHighWater = max(d.fragmentHighWater, len(nalu))

				err := cur.au.addNALU(d.params, nalu)
				if err != nil {
					return err
				}
			}

		default:
			return fmt.Errorf("FU-A without start bit and without a fragment in progress (seq=%d)", pkt.SequenceNumber)
		}

	case typ == h264.NALUTypeSTAPA, typ == h264.NALUTypeSTAPB,
		typ == h264.NALUTypeMTAP16, typ == h264.NALUTypeMTAP24,
		typ == h264.NALUTypeFUB:
		return fmt.Errorf("packets of type %v are not supported (seq=%d)", typ, pkt.SequenceNumber)

	default:
		return fmt.Errorf("invalid NALU header %02x (seq=%d)", header, pkt.SequenceNumber)
	}

	if pkt.Mark {
		d.pending = append(d.pending, cur.au)
		d.state = h264StatePostMark{timestamp: pkt.Timestamp}
	} else {
		d.state = cur
	}

	return nil
}

func (d *h264Demuxer) pull() (Item, error) {
	if len(d.pending) == 0 {
		return nil, nil
	}

	au := d.pending[0]

	if au.newSPS != nil || au.newPPS != nil {
		sps := au.newSPS
		if sps == nil {
			sps = d.params.SPS
		}

		pps := au.newPPS
		if pps == nil {
			pps = d.params.PPS
		}

		params, err := NewH264Parameters(sps, pps)
		if err != nil {
			d.pending = nil
			return nil, fmt.Errorf("invalid in-band parameters: %w", err)
		}

		au.newSPS = nil
		au.newPPS = nil
		au.changed = params
		d.params = params

		return &ParameterChange{
			Stream:     au.stream,
			Parameters: params,
		}, nil
	}

	d.pending = d.pending[1:]

	if au.picture == nil {
		return nil, fmt.Errorf("access unit at %v has no picture", au.timestamp)
	}

	data := make([]byte, 4+len(au.picture))
	binary.BigEndian.PutUint32(data, uint32(len(au.picture)))
	copy(data[4:], au.picture)

	return &VideoFrame{
		Ctx:                 au.ctx,
		Stream:              au.stream,
		Timestamp:           au.timestamp,
		Loss:                au.loss,
		NewParameters:       au.changed,
		IsRandomAccessPoint: h264.NALUType(au.picture[0]&0x1F) == h264.NALUTypeIDR,
		IsDisposable:        (au.picture[0]>>5)&0x03 == 0,
		Data:                data,
	}, nil
}
