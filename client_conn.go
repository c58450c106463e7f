package camrtsp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvrcore/camrtsp/pkg/auth"
	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/conn"
	"github.com/nvrcore/camrtsp/pkg/liberrors"
)

// a time in the past, used to unblock pending reads and writes.
var aLongTimeAgo = time.Unix(1, 0)

var errInterrupted = errors.New("operation interrupted")

func isSuccess(code base.StatusCode) bool {
	return code >= 200 && code < 300
}

// response to a request written with sendNowait.
type pendingResponse struct {
	res *base.Response
}

type clientConn struct {
	c     *Client
	creds *Credentials
	log   logrus.FieldLogger

	nconn net.Conn
	conn  *conn.Conn
	ctx   conn.Context

	cseq uint64

	// set when the context of the current operation is canceled
	interrupted *atomic.Bool

	// non-nil after the server asked for credentials
	sender *auth.Sender

	session string

	// CSeq of requests whose response has not been read yet
	pending map[string]base.Method

	closed bool
}

func (c *Client) connect(ctx context.Context, u *base.URL, creds *Credentials) (*clientConn, error) {
	if u.Scheme != "rtsp" {
		return nil, liberrors.ErrClientUnsupportedScheme{Scheme: u.Scheme}
	}

	if u.User != nil {
		return nil, liberrors.ErrClientURLHasCredentials{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.ReadTimeout)
	defer cancel()

	nconn, err := c.DialContext(dialCtx, "tcp", u.HostPort())
	if err != nil {
		return nil, err
	}

	cctx := conn.NewContext(nconn)

	cc := &clientConn{
		c:     c,
		creds: creds,
		log: c.Log.WithFields(logrus.Fields{
			"conn": cctx.ConnID,
			"peer": nconn.RemoteAddr(),
		}),
		nconn:       nconn,
		conn:        conn.NewConn(nconn, cctx, c.BytesReceived, c.BytesSent),
		ctx:         cctx,
		interrupted: &atomic.Bool{},
		pending:     make(map[string]base.Method),
	}

	cc.log.Debug("connected")

	return cc, nil
}

func (cc *clientConn) close() {
	if !cc.closed {
		cc.closed = true
		cc.nconn.Close()
	}
}

// watch unblocks pending reads and writes when ctx is canceled.
// A canceled operation leaves the connection in an undefined state,
// therefore the caller must close it.
func (cc *clientConn) watch(ctx context.Context) func() bool {
	interrupted := &atomic.Bool{}
	cc.interrupted = interrupted

	return context.AfterFunc(ctx, func() {
		interrupted.Store(true)
		cc.nconn.SetDeadline(aLongTimeAgo) //nolint:errcheck
	})
}

// setReadDeadline sets the deadline of the next read.
// The flag is checked afterwards, since the deadline would override
// the one set by an interruption.
func (cc *clientConn) setReadDeadline() error {
	cc.nconn.SetReadDeadline(time.Now().Add(cc.c.ReadTimeout)) //nolint:errcheck
	if cc.interrupted.Load() {
		return errInterrupted
	}
	return nil
}

func (cc *clientConn) setWriteDeadline() error {
	cc.nconn.SetWriteDeadline(time.Now().Add(cc.c.WriteTimeout)) //nolint:errcheck
	if cc.interrupted.Load() {
		return errInterrupted
	}
	return nil
}

// wrapError attaches the connection Context to an error.
// When ctx has been canceled, the cancellation cause is returned instead.
func (cc *clientConn) wrapError(ctx context.Context, msgCtx conn.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return liberrors.ErrClientConn{Ctx: msgCtx, Err: err}
}

func (cc *clientConn) write(req *base.Request) (string, error) {
	if req.Header == nil {
		req.Header = make(base.Header)
	}

	cc.cseq++
	cseq := strconv.FormatUint(cc.cseq, 10)
	req.Header["CSeq"] = base.HeaderValue{cseq}

	req.Header["User-Agent"] = base.HeaderValue{cc.c.UserAgent}

	if cc.session != "" {
		req.Header["Session"] = base.HeaderValue{cc.session}
	}

	if cc.sender != nil {
		cc.sender.AddAuthorization(req)
	}

	cc.c.OnRequest(req)

	cc.log.WithFields(logrus.Fields{
		"method": req.Method,
		"cseq":   cseq,
	}).Debugf("sending request %v", req.URL)

	err := cc.setWriteDeadline()
	if err != nil {
		return "", err
	}

	err = cc.conn.WriteRequest(req)
	if err != nil {
		return "", err
	}

	return cseq, nil
}

// readMessage reads the next message.
// Responses to requests written with sendNowait are checked, then skipped
// when skipPending is true, or returned as pendingResponse otherwise.
func (cc *clientConn) readMessage(skipPending bool) (interface{}, conn.Context, error) {
	for {
		err := cc.setReadDeadline()
		if err != nil {
			return nil, cc.ctx, err
		}

		msg, msgCtx, err := cc.conn.Read()
		if err != nil {
			return nil, msgCtx, err
		}

		switch msg := msg.(type) {
		case *base.Request:
			return nil, msgCtx, liberrors.ErrClientUnexpectedRequest{Method: msg.Method}

		case *base.Response:
			cseq := msg.Header.Get("CSeq")

			method, ok := cc.pending[cseq]
			if !ok {
				return msg, msgCtx, nil
			}
			delete(cc.pending, cseq)

			cc.c.OnResponse(msg)

			if !isSuccess(msg.StatusCode) {
				return nil, msgCtx, liberrors.ErrClientWrongStatusCode{
					Method:  method,
					Code:    msg.StatusCode,
					Message: msg.StatusMessage,
				}
			}

			if skipPending {
				cc.log.WithField("cseq", cseq).Debugf("%s response received", method)
				continue
			}

			return pendingResponse{res: msg}, msgCtx, nil

		default:
			return msg, msgCtx, nil
		}
	}
}

// readResponse reads the response to the request with the given CSeq.
// Interleaved frames received before the response are discarded, since
// some servers start sending data before the PLAY response.
func (cc *clientConn) readResponse(cseq string) (*base.Response, conn.Context, error) {
	for {
		msg, msgCtx, err := cc.readMessage(true)
		if err != nil {
			return nil, msgCtx, err
		}

		switch msg := msg.(type) {
		case *base.Response:
			got := msg.Header.Get("CSeq")
			if got != cseq {
				return nil, msgCtx, liberrors.ErrClientCSeqMismatch{Expected: cseq, Got: got}
			}

			cc.c.OnResponse(msg)
			return msg, msgCtx, nil

		case *base.InterleavedFrame:
			cc.log.WithField("channel", msg.Channel).
				Debugf("discarding %d bytes of interleaved data received before response", len(msg.Payload))
		}
	}
}

// send writes a request and reads its response.
// When the server answers 401, credentials are added and the request is
// sent again, once.
// Any error or non-successful status code is fatal to the connection.
func (cc *clientConn) send(ctx context.Context, req *base.Request) (*base.Response, conn.Context, error) {
	stop := cc.watch(ctx)
	defer stop()

	for {
		cseq, err := cc.write(req)
		if err != nil {
			return nil, cc.ctx, cc.wrapError(ctx, cc.ctx, err)
		}

		res, msgCtx, err := cc.readResponse(cseq)
		if err != nil {
			return nil, msgCtx, cc.wrapError(ctx, msgCtx, err)
		}

		if res.StatusCode == base.StatusUnauthorized {
			err = cc.setupAuth(res)
			if err != nil {
				return nil, msgCtx, cc.wrapError(ctx, msgCtx, err)
			}
			continue
		}

		if !isSuccess(res.StatusCode) {
			return nil, msgCtx, cc.wrapError(ctx, msgCtx, liberrors.ErrClientWrongStatusCode{
				Method:  req.Method,
				Code:    res.StatusCode,
				Message: res.StatusMessage,
			})
		}

		return res, msgCtx, nil
	}
}

func (cc *clientConn) setupAuth(res *base.Response) error {
	if cc.sender != nil {
		return liberrors.ErrClientAuthFailed{}
	}

	if cc.creds == nil {
		return liberrors.ErrClientAuthRequired{}
	}

	sender := &auth.Sender{
		WWWAuth: res.Header["WWW-Authenticate"],
		User:    cc.creds.Username,
		Pass:    cc.creds.Password,
	}
	err := sender.Initialize()
	if err != nil {
		return liberrors.ErrClientAuthSetup{Err: err}
	}

	cc.log.Debugf("server requested authentication, using %v", sender.Method())
	cc.sender = sender
	return nil
}

// writePending writes a request whose response is read later by readMessage.
func (cc *clientConn) writePending(req *base.Request) (string, error) {
	cseq, err := cc.write(req)
	if err != nil {
		return "", err
	}

	cc.pending[cseq] = req.Method
	return cseq, nil
}

// sendNowait writes a request without waiting for its response,
// and returns its CSeq.
// The response is checked when it is read.
func (cc *clientConn) sendNowait(ctx context.Context, req *base.Request) (string, error) {
	stop := cc.watch(ctx)
	defer stop()

	cseq, err := cc.writePending(req)
	if err != nil {
		return "", cc.wrapError(ctx, cc.ctx, err)
	}

	return cseq, nil
}

// waitData blocks until data is available or deadline expires.
func (cc *clientConn) waitData(deadline time.Time) error {
	cc.nconn.SetReadDeadline(deadline) //nolint:errcheck
	if cc.interrupted.Load() {
		return errInterrupted
	}
	return cc.conn.Wait()
}
