/*
Package camrtsp is a RTSP client library for IP cameras.

It pulls audio, video and metadata streams through RTP interleaved over the
RTSP/TCP connection, reconstructs timestamps and reassembles frames.

Examples are available at https://github.com/nvrcore/camrtsp/tree/main/examples
*/
package camrtsp

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/description"
	"github.com/nvrcore/camrtsp/pkg/headers"
	"github.com/nvrcore/camrtsp/pkg/liberrors"
)

// Credentials are the credentials used to authenticate against a server.
type Credentials struct {
	Username string
	Password string
}

// Client is a RTSP client.
// Its fields are the client configuration; they must not be changed
// after Start() is called.
type Client struct {
	//
	// RTSP parameters (all optional)
	//
	// timeout of read operations.
	// It defaults to 10 seconds.
	ReadTimeout time.Duration
	// timeout of write operations.
	// It defaults to 10 seconds.
	WriteTimeout time.Duration
	// user agent header.
	// It defaults to "camrtsp".
	UserAgent string
	// period of keepalives.
	// It is lowered to 80% of the session timeout announced by the server.
	// It defaults to 30 seconds.
	KeepalivePeriod time.Duration
	// ignore sequence numbers equal to zero in RTP-Info,
	// sent by some Hikvision firmwares regardless of the actual value.
	// It defaults to false.
	IgnoreZeroSeq bool
	// pointer to a variable that stores received bytes.
	BytesReceived *uint64
	// pointer to a variable that stores sent bytes.
	BytesSent *uint64

	//
	// system functions (all optional)
	//
	// function used to initialize the TCP client.
	// It defaults to (&net.Dialer{}).DialContext.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)
	// logger.
	// It defaults to a logger that discards everything.
	Log logrus.FieldLogger

	//
	// callbacks (all optional)
	//
	// called before every request.
	OnRequest func(*base.Request)
	// called after every response.
	OnResponse func(*base.Response)

	//
	// private
	//

	started bool
}

// Start initializes the Client, filling in default values.
func (c *Client) Start() error {
	// RTSP parameters
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "camrtsp"
	}
	if c.KeepalivePeriod == 0 {
		c.KeepalivePeriod = 30 * time.Second
	}
	if c.KeepalivePeriod < 0 {
		return fmt.Errorf("invalid KeepalivePeriod")
	}
	if c.BytesReceived == nil {
		c.BytesReceived = new(uint64)
	}
	if c.BytesSent == nil {
		c.BytesSent = new(uint64)
	}

	// system functions
	if c.DialContext == nil {
		c.DialContext = (&net.Dialer{}).DialContext
	}
	if c.Log == nil {
		l := logrus.New()
		l.Out = io.Discard
		c.Log = l
	}

	// callbacks
	if c.OnRequest == nil {
		c.OnRequest = func(*base.Request) {
		}
	}
	if c.OnResponse == nil {
		c.OnResponse = func(*base.Response) {
		}
	}

	c.started = true
	return nil
}

// Describe connects to a server, sends a DESCRIBE request and returns a
// Session in the described state.
// Credentials are optional and are used only when the server requests them.
func (c *Client) Describe(ctx context.Context, u *base.URL, creds *Credentials) (*Session, error) {
	if !c.started {
		return nil, fmt.Errorf("Start() has not been called")
	}

	cc, err := c.connect(ctx, u, creds)
	if err != nil {
		return nil, err
	}

	res, msgCtx, err := cc.send(ctx, &base.Request{
		Method: base.Describe,
		URL:    u,
		Header: base.Header{
			"Accept":                      base.HeaderValue{"application/sdp"},
			base.HeaderXAcceptDynamicRate: base.HeaderValue{"1"},
		},
	})
	if err != nil {
		cc.close()
		return nil, err
	}

	p, err := description.ParseDescribe(u, res)
	if err != nil {
		cc.close()
		return nil, liberrors.ErrClientConn{Ctx: msgCtx, Err: err}
	}

	for i, s := range p.Streams {
		cc.log.WithField("stream", i).Debugf("%s stream: %s/%d, control %v",
			s.Media, s.EncodingName, s.ClockRate, s.Control)
	}

	return &Session{
		cc:              cc,
		presentation:    p,
		keepalivePeriod: c.KeepalivePeriod,
	}, nil
}

// Session is a RTSP session in the described state.
// Streams are set up with Setup(), then Play() moves the session into the
// playing state.
// A Session must be used by a single goroutine.
type Session struct {
	cc              *clientConn
	presentation    *description.Presentation
	channels        ChannelMappings
	keepalivePeriod time.Duration

	// a failed or consumed session can't be used anymore
	terminated bool
}

// Presentation returns the presentation obtained from DESCRIBE.
func (s *Session) Presentation() *description.Presentation {
	return s.presentation
}

// Close closes the connection.
func (s *Session) Close() error {
	s.terminated = true
	s.cc.close()
	return nil
}

func (s *Session) fail(err error) error {
	s.terminated = true
	s.cc.close()
	return err
}

// Setup sets up a stream, that is then transmitted on the next unassigned
// interleaved channels.
func (s *Session) Setup(ctx context.Context, i int) error {
	if s.terminated {
		return liberrors.ErrClientTerminated{}
	}

	if i < 0 || i >= len(s.presentation.Streams) {
		return liberrors.ErrClientStreamIndexInvalid{Stream: i, Count: len(s.presentation.Streams)}
	}

	stream := s.presentation.Streams[i]

	if stream.State != description.StreamStateUninit {
		return liberrors.ErrClientStreamAlreadySetup{Stream: i}
	}

	if stream.ParamsError != nil {
		return fmt.Errorf("stream %d can't be set up: %w", i, stream.ParamsError)
	}

	proposed, ok := s.channels.NextUnassigned()
	if !ok {
		return liberrors.ErrClientNoChannelsAvailable{}
	}

	res, msgCtx, err := s.cc.send(ctx, &base.Request{
		Method: base.Setup,
		URL:    stream.Control,
		Header: base.Header{
			"Transport": headers.Transport{
				InterleavedIDs: &[2]int{int(proposed), int(proposed) + 1},
			}.Marshal(),
		},
	})
	if err != nil {
		return s.fail(err)
	}

	err = s.handleSetupResponse(i, stream, res)
	if err != nil {
		return s.fail(liberrors.ErrClientConn{Ctx: msgCtx, Err: err})
	}

	return nil
}

func (s *Session) handleSetupResponse(i int, stream *description.Stream, res *base.Response) error {
	var sx headers.Session
	err := sx.Unmarshal(res.Header["Session"])
	if err != nil {
		return liberrors.ErrClientSessionHeaderInvalid{Err: err}
	}

	switch {
	case s.cc.session == "":
		s.cc.session = sx.Session

	case s.cc.session != sx.Session:
		return liberrors.ErrClientSessionChanged{Old: s.cc.session, New: sx.Session}
	}

	if sx.Timeout != nil && *sx.Timeout > 0 {
		period := time.Duration(*sx.Timeout) * time.Second * 8 / 10
		if period < s.keepalivePeriod {
			s.keepalivePeriod = period
		}
	}

	var th headers.Transport
	err = th.Unmarshal(res.Header["Transport"])
	if err != nil {
		return liberrors.ErrClientTransportHeaderInvalid{Err: err}
	}

	if th.InterleavedIDs == nil {
		return liberrors.ErrClientTransportHeaderNoInterleavedIDs{}
	}

	// the server is allowed to pick different channels
	err = s.channels.Assign(uint8(th.InterleavedIDs[0]), i)
	if err != nil {
		return liberrors.ErrClientTransportHeaderInvalidInterleavedIDs{Err: err}
	}

	stream.SSRC = th.SSRC
	stream.State = description.StreamStateInit

	s.cc.log.WithFields(logrus.Fields{
		"stream":  i,
		"channel": th.InterleavedIDs[0],
	}).Debug("stream set up")

	return nil
}

// Play sends a PLAY request and returns the session in the playing state.
// The Session can't be used anymore afterwards.
func (s *Session) Play(ctx context.Context) (*Playing, error) {
	if s.terminated {
		return nil, liberrors.ErrClientTerminated{}
	}

	var setupStreams []int
	for i, st := range s.presentation.Streams {
		if st.State == description.StreamStateInit {
			setupStreams = append(setupStreams, i)
		}
	}

	if len(setupStreams) == 0 {
		return nil, liberrors.ErrClientNoStreamsSetup{}
	}

	res, msgCtx, err := s.cc.send(ctx, &base.Request{
		Method: base.Play,
		URL:    s.presentation.Control,
		Header: base.Header{
			"Range": headers.Range{Start: 0}.Marshal(),
		},
	})
	if err != nil {
		return nil, s.fail(err)
	}

	err = s.handlePlayResponse(setupStreams, res)
	if err != nil {
		return nil, s.fail(liberrors.ErrClientConn{Ctx: msgCtx, Err: err})
	}

	p, err := newPlaying(s, setupStreams)
	if err != nil {
		return nil, s.fail(liberrors.ErrClientConn{Ctx: msgCtx, Err: err})
	}

	s.terminated = true
	return p, nil
}

func (s *Session) handlePlayResponse(setupStreams []int, res *base.Response) error {
	v, ok := res.Header["RTP-Info"]
	if !ok {
		return nil
	}

	var ri headers.RTPInfo
	err := ri.Unmarshal(v)
	if err != nil {
		return liberrors.ErrClientRTPInfoInvalid{Err: err}
	}

	if s.c().IgnoreZeroSeq {
		for _, e := range ri {
			if e.SequenceNumber != nil && *e.SequenceNumber == 0 {
				s.cc.log.Debugf("ignoring seq=0 of RTP-Info entry %s", e.URL)
				e.SequenceNumber = nil
			}
		}
	}

	// with a single stream, the entry is assigned regardless of its URL,
	// since some cameras send URLs that don't match any control attribute.
	if len(setupStreams) == 1 && len(ri) == 1 {
		st := s.presentation.Streams[setupStreams[0]]
		e := ri[0]

		if e.SequenceNumber != nil {
			st.InitialSeq = e.SequenceNumber
		}
		if e.RTPTime != nil {
			st.InitialRTPTime = e.RTPTime
		}
		if e.SSRC != nil {
			st.SSRC = e.SSRC
		}
		return nil
	}

	err = s.presentation.ApplyRTPInfo(ri)
	if err != nil {
		return liberrors.ErrClientRTPInfoInvalid{Err: err}
	}

	return nil
}

func (s *Session) c() *Client {
	return s.cc.c
}
