// Package rtcpreceiver contains a utility to read RTCP sender reports.
package rtcpreceiver

import (
	"fmt"

	"github.com/pion/rtcp"

	"github.com/nvrcore/camrtsp/pkg/conn"
	"github.com/nvrcore/camrtsp/pkg/ntp"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
)

// SenderReport is a RTCP sender report, placed on the timeline of its stream.
type SenderReport struct {
	// context of the interleaved frame that carried the report
	Ctx conn.Context

	// stream index
	Stream int

	// RTP timestamp of the report
	Timestamp rtptime.Timestamp

	// wallclock time of the report
	NTPTimestamp ntp.Timestamp
}

// RTCPReceiver reads the RTCP packets of a stream.
type RTCPReceiver struct {
	stream   int
	timeline *rtptime.Timeline
}

// New allocates a RTCPReceiver.
// The timeline is shared with the RTP side of the stream.
func New(stream int, timeline *rtptime.Timeline) *RTCPReceiver {
	return &RTCPReceiver{
		stream:   stream,
		timeline: timeline,
	}
}

// Process processes a compound RTCP packet.
// It returns the sender reports found inside it; other packet types are skipped.
func (rr *RTCPReceiver) Process(ctx conn.Context, data []byte) ([]*SenderReport, error) {
	var ret []*SenderReport

	for len(data) > 0 {
		var h rtcp.Header
		err := h.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("corrupt RTCP header: %w", err)
		}

		pktLen := (int(h.Length) + 1) * 4
		if pktLen > len(data) {
			return nil, fmt.Errorf("RTCP packet length is %d, but only %d bytes remain", pktLen, len(data))
		}

		pkt := data[:pktLen]
		data = data[pktLen:]

		if h.Type != rtcp.TypeSenderReport {
			continue
		}

		var sr rtcp.SenderReport
		err = sr.Unmarshal(pkt)
		if err != nil {
			return nil, fmt.Errorf("corrupt RTCP sender report: %w", err)
		}

		ts, err := rr.timeline.Place(sr.RTPTime)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp in RTCP sender report: %w", err)
		}

		ret = append(ret, &SenderReport{
			Ctx:          ctx,
			Stream:       rr.stream,
			Timestamp:    ts,
			NTPTimestamp: ntp.Timestamp(sr.NTPTime),
		})
	}

	return ret, nil
}
