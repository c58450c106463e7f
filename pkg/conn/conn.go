// Package conn contains a RTSP connection implementation.
package conn

import (
	"bufio"
	"io"
	"time"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/bytecounter"
)

const (
	readBufferSize = 4096
)

// Conn is a RTSP connection.
type Conn struct {
	bc  *bytecounter.ByteCounter
	br  *bufio.Reader
	ctx Context
}

// NewConn allocates a Conn.
// Counters are optional and receive the amount of read and written bytes.
func NewConn(rw io.ReadWriter, ctx Context, received *uint64, sent *uint64) *Conn {
	// the outer counter is private and tracks the read position
	bc := bytecounter.New(bytecounter.New(rw, received, sent), nil, nil)

	return &Conn{
		bc:  bc,
		br:  bufio.NewReaderSize(bc, readBufferSize),
		ctx: ctx,
	}
}

// Context returns the connection Context.
func (c *Conn) Context() Context {
	return c.ctx
}

// pos returns the offset of the next unread byte.
func (c *Conn) pos() uint64 {
	return c.bc.BytesReceived() - uint64(c.br.Buffered())
}

// Read reads a Request, a Response or an Interleaved frame,
// together with the Context of the message.
func (c *Conn) Read() (interface{}, Context, error) {
	byts, err := c.br.Peek(2)
	if err != nil {
		return nil, c.ctx, err
	}

	ctx := c.ctx
	ctx.Pos = c.pos()
	ctx.Received = time.Now()

	if byts[0] == base.InterleavedFrameMagicByte {
		fr, err := c.ReadInterleavedFrame()
		return fr, ctx, err
	}

	if byts[0] == 'R' && byts[1] == 'T' {
		res, err := c.ReadResponse()
		return res, ctx, err
	}

	req, err := c.ReadRequest()
	return req, ctx, err
}

// Wait blocks until at least one byte can be read.
// Data is not consumed, therefore a read deadline that expires during Wait
// leaves the Conn usable.
func (c *Conn) Wait() error {
	_, err := c.br.Peek(1)
	return err
}

// ReadRequest reads a Request.
func (c *Conn) ReadRequest() (*base.Request, error) {
	var req base.Request
	err := req.Unmarshal(c.br)
	return &req, err
}

// ReadResponse reads a Response.
func (c *Conn) ReadResponse() (*base.Response, error) {
	var res base.Response
	err := res.Unmarshal(c.br)
	return &res, err
}

// ReadInterleavedFrame reads a InterleavedFrame.
// Payloads are never reused, since they are handed to demuxers.
func (c *Conn) ReadInterleavedFrame() (*base.InterleavedFrame, error) {
	var fr base.InterleavedFrame
	err := fr.Unmarshal(c.br)
	return &fr, err
}

// WriteRequest writes a request.
func (c *Conn) WriteRequest(req *base.Request) error {
	buf, err := req.Marshal()
	if err != nil {
		return err
	}
	_, err = c.bc.Write(buf)
	return err
}

// WriteResponse writes a response.
func (c *Conn) WriteResponse(res *base.Response) error {
	buf, err := res.Marshal()
	if err != nil {
		return err
	}
	_, err = c.bc.Write(buf)
	return err
}

// WriteInterleavedFrame writes an interleaved frame.
func (c *Conn) WriteInterleavedFrame(fr *base.InterleavedFrame, buf []byte) error {
	n, err := fr.MarshalTo(buf)
	if err != nil {
		return err
	}
	_, err = c.bc.Write(buf[:n])
	return err
}
