package base

import (
	"fmt"
	"net"
	"net/url"
)

// DefaultPort is the port used when a RTSP URL doesn't specify one.
const DefaultPort = "554"

// URL is a RTSP URL.
// This is basically an HTTP URL with some additional functions to handle
// control attributes.
type URL url.URL

// ParseURL parses a RTSP URL.
// Only the plain rtsp scheme is accepted.
func ParseURL(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "rtsp" {
		return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("host is missing")
	}

	return (*URL)(u), nil
}

// MustParseURL is like ParseURL but panics in case of errors.
func MustParseURL(s string) *URL {
	u, err := ParseURL(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return (*url.URL)(u).String()
}

// Clone clones a URL.
func (u *URL) Clone() *URL {
	c := *u
	if u.User != nil {
		tmp := *u.User
		c.User = &tmp
	}
	return &c
}

// CloneWithoutCredentials clones a URL without its credentials.
func (u *URL) CloneWithoutCredentials() *URL {
	c := *u
	c.User = nil
	return &c
}

// HostPort returns the address to dial, filling in the default RTSP port.
func (u *URL) HostPort() string {
	if u.Port() == "" {
		return net.JoinHostPort(u.Hostname(), DefaultPort)
	}
	return u.Host
}

// Hostname returns the host without the port.
func (u *URL) Hostname() string {
	return (*url.URL)(u).Hostname()
}

// Port returns the port, or an empty string.
func (u *URL) Port() string {
	return (*url.URL)(u).Port()
}

// Join resolves a control attribute against the URL.
// "*" refers to the URL itself.
func (u *URL) Join(control string) (*URL, error) {
	if control == "*" {
		return u.Clone(), nil
	}

	ref, err := url.Parse(control)
	if err != nil {
		return nil, fmt.Errorf("unable to join base URL %v with control %q: %w", u, control, err)
	}

	return (*URL)((*url.URL)(u).ResolveReference(ref)), nil
}
