package conn

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Context describes the position of a message inside a connection.
// It is attached to received messages and errors, in order to allow
// matching a failure against a packet capture.
type Context struct {
	// connection id
	ConnID uuid.UUID

	// time the connection was established
	Established time.Time

	LocalAddr net.Addr
	PeerAddr  net.Addr

	// offset of the message inside the received byte stream
	Pos uint64

	// time the message was received
	Received time.Time
}

// NewContext allocates the Context of a freshly established connection.
func NewContext(nc net.Conn) Context {
	return Context{
		ConnID:      uuid.New(),
		Established: time.Now(),
		LocalAddr:   nc.LocalAddr(),
		PeerAddr:    nc.RemoteAddr(),
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "?"
	}
	return a.String()
}

// String implements fmt.Stringer.
func (c Context) String() string {
	return fmt.Sprintf("[%s(me)->%s@%s pos=%d]",
		addrString(c.LocalAddr), addrString(c.PeerAddr),
		c.Established.Format(time.RFC3339), c.Pos)
}
