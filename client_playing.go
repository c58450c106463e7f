package camrtsp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/codec"
	"github.com/nvrcore/camrtsp/pkg/conn"
	"github.com/nvrcore/camrtsp/pkg/description"
	"github.com/nvrcore/camrtsp/pkg/liberrors"
	"github.com/nvrcore/camrtsp/pkg/rtcpreceiver"
	"github.com/nvrcore/camrtsp/pkg/rtptime"
	"github.com/nvrcore/camrtsp/pkg/rtpvalidator"
)

// Message is a message received while playing.
// It is either a *base.Response to a keepalive or an *InterleavedData.
type Message interface{}

// InterleavedData is a block of data received on an interleaved channel.
type InterleavedData struct {
	Ctx     conn.Context
	Channel uint8
	Payload []byte
}

// PacketItem is either a *rtpvalidator.Packet or a *rtcpreceiver.SenderReport.
type PacketItem interface{}

type playingStream struct {
	timeline *rtptime.Timeline
	rtp      *rtpvalidator.Validator
	rtcp     *rtcpreceiver.RTCPReceiver

	// error that invalidated the stream
	err error
}

// Playing is a RTSP session in the playing state.
// A Playing must be used by a single goroutine, that calls Next(),
// NextPacket() or Demuxed().Next().
// Keepalives are sent while these functions wait for data.
type Playing struct {
	cc              *clientConn
	presentation    *description.Presentation
	channels        ChannelMappings
	keepalivePeriod time.Duration
	nextKeepalive   time.Time
	streams         map[int]*playingStream
	reports         []*rtcpreceiver.SenderReport
	demuxed         *Demuxed
	terminated      bool
}

func newPlaying(s *Session, setupStreams []int) (*Playing, error) {
	p := &Playing{
		cc:              s.cc,
		presentation:    s.presentation,
		channels:        s.channels,
		keepalivePeriod: s.keepalivePeriod,
		nextKeepalive:   time.Now().Add(s.keepalivePeriod),
		streams:         make(map[int]*playingStream),
	}

	for _, i := range setupStreams {
		st := s.presentation.Streams[i]

		tl, err := rtptime.NewTimeline(st.InitialRTPTime, st.ClockRate)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}

		p.streams[i] = &playingStream{
			timeline: tl,
			rtp:      rtpvalidator.New(i, st.PayloadType, tl, st.SSRC, st.InitialSeq),
			rtcp:     rtcpreceiver.New(i, tl),
		}
	}

	return p, nil
}

// Presentation returns the presentation, with the initial state of the
// streams filled in from the PLAY response.
func (p *Playing) Presentation() *description.Presentation {
	return p.presentation
}

// KeepalivePeriod returns the period at which keepalives are sent.
func (p *Playing) KeepalivePeriod() time.Duration {
	return p.keepalivePeriod
}

// Channel returns the destination of an interleaved channel.
func (p *Playing) Channel(id uint8) (ChannelMapping, bool) {
	return p.channels.Lookup(id)
}

// Close closes the connection without sending TEARDOWN.
func (p *Playing) Close() error {
	p.terminated = true
	p.cc.close()
	return nil
}

func (p *Playing) fail(err error) error {
	p.terminated = true
	p.cc.close()
	return err
}

func (p *Playing) keepaliveRequest() *base.Request {
	return &base.Request{
		Method: base.GetParameter,
		URL:    p.presentation.Control,
	}
}

func (p *Playing) keepaliveSent(cseq string) {
	p.cc.log.WithField("cseq", cseq).Debug("keepalive sent")
	p.nextKeepalive = time.Now().Add(p.keepalivePeriod)
}

// SendKeepalive sends a GET_PARAMETER request immediately.
// The response is read, and checked, by Next().
func (p *Playing) SendKeepalive(ctx context.Context) error {
	if p.terminated {
		return liberrors.ErrClientTerminated{}
	}

	cseq, err := p.cc.sendNowait(ctx, p.keepaliveRequest())
	if err != nil {
		return p.fail(err)
	}

	p.keepaliveSent(cseq)
	return nil
}

// waitData waits for incoming data, sending keepalives when they are due.
// It fails when no data is received for ReadTimeout.
func (p *Playing) waitData(ctx context.Context) error {
	timeout := time.Now().Add(p.cc.c.ReadTimeout)

	for {
		deadline := timeout
		keepalive := false
		if p.nextKeepalive.Before(deadline) {
			deadline = p.nextKeepalive
			keepalive = true
		}

		err := p.cc.waitData(deadline)
		if err == nil {
			return nil
		}

		if !keepalive || !errors.Is(err, os.ErrDeadlineExceeded) || p.cc.interrupted.Load() {
			return p.cc.wrapError(ctx, p.cc.ctx, err)
		}

		cseq, err := p.cc.writePending(p.keepaliveRequest())
		if err != nil {
			return p.cc.wrapError(ctx, p.cc.ctx, err)
		}

		p.keepaliveSent(cseq)
	}
}

// Teardown sends a TEARDOWN request, then closes the connection.
func (p *Playing) Teardown(ctx context.Context) error {
	if p.terminated {
		return liberrors.ErrClientTerminated{}
	}

	_, _, err := p.cc.send(ctx, &base.Request{
		Method: base.Teardown,
		URL:    p.presentation.Control,
	})

	p.terminated = true
	p.cc.close()

	return err
}

// Next returns the next message.
// While waiting, a keepalive is sent every KeepalivePeriod().
// Any error is fatal to the session.
func (p *Playing) Next(ctx context.Context) (Message, error) {
	if p.terminated {
		return nil, liberrors.ErrClientTerminated{}
	}

	stop := p.cc.watch(ctx)
	defer stop()

	err := p.waitData(ctx)
	if err != nil {
		return nil, p.fail(err)
	}

	msg, msgCtx, err := p.cc.readMessage(false)
	if err != nil {
		return nil, p.fail(p.cc.wrapError(ctx, msgCtx, err))
	}

	switch msg := msg.(type) {
	case pendingResponse:
		return msg.res, nil

	case *base.Response:
		return nil, p.fail(liberrors.ErrClientConn{
			Ctx: msgCtx,
			Err: liberrors.ErrClientUnexpectedResponse{CSeq: msg.Header.Get("CSeq")},
		})

	case *base.InterleavedFrame:
		return &InterleavedData{
			Ctx:     msgCtx,
			Channel: uint8(msg.Channel),
			Payload: msg.Payload,
		}, nil
	}

	return nil, p.fail(liberrors.ErrClientConn{
		Ctx: msgCtx,
		Err: fmt.Errorf("unexpected message %T", msg),
	})
}

// streamFailed invalidates a stream.
// Data of invalidated streams is discarded.
func (p *Playing) streamFailed(ctx conn.Context, stream int, err error) error {
	p.streams[stream].err = err

	p.cc.log.WithField("stream", stream).Debugf("stream invalidated: %v", err)

	return liberrors.ErrClientStream{
		Ctx:    ctx,
		Stream: stream,
		Err:    err,
	}
}

// NextPacket returns the next RTP packet or RTCP sender report, after
// validating it.
// Errors of type liberrors.ErrClientStream are fatal to a single stream;
// other errors are fatal to the session.
func (p *Playing) NextPacket(ctx context.Context) (PacketItem, error) {
	for {
		if len(p.reports) != 0 {
			sr := p.reports[0]
			p.reports = p.reports[1:]
			return sr, nil
		}

		msg, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}

		data, ok := msg.(*InterleavedData)
		if !ok {
			continue
		}

		m, ok := p.channels.Lookup(data.Channel)
		if !ok {
			return nil, p.fail(liberrors.ErrClientConn{
				Ctx: data.Ctx,
				Err: liberrors.ErrClientUnassignedChannel{Channel: int(data.Channel)},
			})
		}

		ps := p.streams[m.Stream]
		if ps.err != nil {
			continue
		}

		switch m.Type {
		case ChannelTypeRTP:
			pkt, err := ps.rtp.Process(data.Ctx, data.Payload)
			if err != nil {
				return nil, p.streamFailed(data.Ctx, m.Stream, err)
			}
			return pkt, nil

		case ChannelTypeRTCP:
			srs, err := ps.rtcp.Process(data.Ctx, data.Payload)
			if err != nil {
				return nil, p.streamFailed(data.Ctx, m.Stream, err)
			}
			p.reports = append(p.reports, srs...)
		}
	}
}

// Demuxed returns a reader of frames.
// After calling it, packets must be read through the returned Demuxed only.
func (p *Playing) Demuxed() (*Demuxed, error) {
	if p.demuxed != nil {
		return nil, fmt.Errorf("Demuxed() has already been called")
	}

	d := &Demuxed{
		p:        p,
		demuxers: make(map[int]*codec.Demuxer),
	}

	for i := range p.streams {
		params := p.presentation.Streams[i].Params
		if params == nil {
			p.cc.log.WithField("stream", i).Debug("codec not supported, packets will be discarded")
			continue
		}

		dem, err := codec.NewFromParameters(params)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		d.demuxers[i] = dem
	}

	p.demuxed = d
	return d, nil
}

// Demuxed reads frames from the streams of a Playing session.
type Demuxed struct {
	p        *Playing
	demuxers map[int]*codec.Demuxer

	// stream whose demuxer may still hold items
	pending *int
	lastCtx conn.Context
}

// Next returns the next item, that is one of *codec.VideoFrame,
// *codec.AudioFrame, *codec.MessageFrame, *codec.ParameterChange
// or *rtcpreceiver.SenderReport.
// Errors of type liberrors.ErrClientStream are fatal to a single stream;
// other errors are fatal to the session.
func (d *Demuxed) Next(ctx context.Context) (codec.Item, error) {
	for {
		if d.pending != nil {
			stream := *d.pending

			item, err := d.demuxers[stream].Pull()
			if err != nil {
				d.pending = nil
				return nil, d.p.streamFailed(d.lastCtx, stream, err)
			}

			if item != nil {
				return item, nil
			}

			d.pending = nil
		}

		pi, err := d.p.NextPacket(ctx)
		if err != nil {
			return nil, err
		}

		switch pi := pi.(type) {
		case *rtcpreceiver.SenderReport:
			return pi, nil

		case *rtpvalidator.Packet:
			dem, ok := d.demuxers[pi.Stream]
			if !ok {
				continue
			}

			err = dem.Push(pi)
			if err != nil {
				return nil, d.p.streamFailed(pi.Ctx, pi.Stream, err)
			}

			stream := pi.Stream
			d.pending = &stream
			d.lastCtx = pi.Ctx
		}
	}
}
