// Package liberrors contains errors returned by the library.
package liberrors

import (
	"fmt"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/conn"
)

// ErrClientConn wraps an error that occurred on a connection,
// together with the Context of the offending message.
type ErrClientConn struct {
	Ctx conn.Context
	Err error
}

// Error implements the error interface.
func (e ErrClientConn) Error() string {
	return fmt.Sprintf("%v: %v", e.Ctx, e.Err)
}

// Unwrap returns the wrapped error.
func (e ErrClientConn) Unwrap() error {
	return e.Err
}

// ErrClientStream wraps an error that invalidated a single stream.
type ErrClientStream struct {
	Ctx    conn.Context
	Stream int
	Err    error
}

// Error implements the error interface.
func (e ErrClientStream) Error() string {
	return fmt.Sprintf("%v: stream %d: %v", e.Ctx, e.Stream, e.Err)
}

// Unwrap returns the wrapped error.
func (e ErrClientStream) Unwrap() error {
	return e.Err
}

// ErrClientUnsupportedScheme is returned in case of an URL with a scheme other than rtsp.
type ErrClientUnsupportedScheme struct {
	Scheme string
}

// Error implements the error interface.
func (e ErrClientUnsupportedScheme) Error() string {
	return fmt.Sprintf("unsupported scheme '%s', only rtsp is supported", e.Scheme)
}

// ErrClientURLHasCredentials is returned when credentials are embedded in the URL.
type ErrClientURLHasCredentials struct{}

// Error implements the error interface.
func (e ErrClientURLHasCredentials) Error() string {
	return "URL must not contain credentials, pass them explicitly"
}

// ErrClientWrongStatusCode is returned in case of a wrong status code.
type ErrClientWrongStatusCode struct {
	Method  base.Method
	Code    base.StatusCode
	Message string
}

// Error implements the error interface.
func (e ErrClientWrongStatusCode) Error() string {
	return fmt.Sprintf("%s returned status code %d (%s)", e.Method, e.Code, e.Message)
}

// ErrClientCSeqMismatch is returned when a response doesn't match the request CSeq.
type ErrClientCSeqMismatch struct {
	Expected string
	Got      string
}

// Error implements the error interface.
func (e ErrClientCSeqMismatch) Error() string {
	return fmt.Sprintf("expected CSeq %q, got %q", e.Expected, e.Got)
}

// ErrClientAuthFailed is returned when the server rejects the credentials.
type ErrClientAuthFailed struct{}

// Error implements the error interface.
func (e ErrClientAuthFailed) Error() string {
	return "received Unauthorized after sending credentials"
}

// ErrClientAuthRequired is returned when the server requests credentials and none were supplied.
type ErrClientAuthRequired struct{}

// Error implements the error interface.
func (e ErrClientAuthRequired) Error() string {
	return "authentication required, no credentials supplied"
}

// ErrClientAuthSetup is returned when a WWW-Authenticate header can't be used.
type ErrClientAuthSetup struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientAuthSetup) Error() string {
	return fmt.Sprintf("unable to setup authentication: %s", e.Err)
}

// ErrClientUnexpectedRequest is returned when the server sends a request.
type ErrClientUnexpectedRequest struct {
	Method base.Method
}

// Error implements the error interface.
func (e ErrClientUnexpectedRequest) Error() string {
	return fmt.Sprintf("unexpected request from server (%s)", e.Method)
}

// ErrClientContentTypeMissing is returned in case the Content-Type header is missing.
type ErrClientContentTypeMissing struct{}

// Error implements the error interface.
func (e ErrClientContentTypeMissing) Error() string {
	return "Content-Type header is missing"
}

// ErrClientContentTypeUnsupported is returned in case the Content-Type header is unsupported.
type ErrClientContentTypeUnsupported struct {
	CT base.HeaderValue
}

// Error implements the error interface.
func (e ErrClientContentTypeUnsupported) Error() string {
	return fmt.Sprintf("unsupported Content-Type header '%v'", e.CT)
}

// ErrClientInvalidBaseURL is returned when Content-Base or Content-Location can't be parsed.
type ErrClientInvalidBaseURL struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientInvalidBaseURL) Error() string {
	return fmt.Sprintf("invalid base URL: %v", e.Err)
}

// ErrClientStreamIndexInvalid is returned when a stream index is out of range.
type ErrClientStreamIndexInvalid struct {
	Stream int
	Count  int
}

// Error implements the error interface.
func (e ErrClientStreamIndexInvalid) Error() string {
	return fmt.Sprintf("stream %d doesn't exist (there are %d streams)", e.Stream, e.Count)
}

// ErrClientStreamAlreadySetup is returned when SETUP is called twice on the same stream.
type ErrClientStreamAlreadySetup struct {
	Stream int
}

// Error implements the error interface.
func (e ErrClientStreamAlreadySetup) Error() string {
	return fmt.Sprintf("stream %d has already been set up", e.Stream)
}

// ErrClientNoStreamsSetup is returned when PLAY is called before any SETUP.
type ErrClientNoStreamsSetup struct{}

// Error implements the error interface.
func (e ErrClientNoStreamsSetup) Error() string {
	return "no streams have been set up"
}

// ErrClientNoChannelsAvailable is returned when all interleaved channels are in use.
type ErrClientNoChannelsAvailable struct{}

// Error implements the error interface.
func (e ErrClientNoChannelsAvailable) Error() string {
	return "no interleaved channels available"
}

// ErrClientSessionHeaderInvalid is returned in case of an invalid session header.
type ErrClientSessionHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientSessionHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid session header: %v", e.Err)
}

// ErrClientSessionChanged is returned when the server changes the session id.
type ErrClientSessionChanged struct {
	Old string
	New string
}

// Error implements the error interface.
func (e ErrClientSessionChanged) Error() string {
	return fmt.Sprintf("session id changed from %q to %q", e.Old, e.New)
}

// ErrClientTransportHeaderInvalid is returned in case the transport header of the server is invalid.
type ErrClientTransportHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientTransportHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid transport header: %v", e.Err)
}

// ErrClientTransportHeaderNoInterleavedIDs is returned in case the transport header doesn't contain interleaved IDs.
type ErrClientTransportHeaderNoInterleavedIDs struct{}

// Error implements the error interface.
func (e ErrClientTransportHeaderNoInterleavedIDs) Error() string {
	return "transport header does not contain interleaved IDs"
}

// ErrClientTransportHeaderInvalidInterleavedIDs is returned when the server-confirmed channel can't be used.
type ErrClientTransportHeaderInvalidInterleavedIDs struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientTransportHeaderInvalidInterleavedIDs) Error() string {
	return fmt.Sprintf("invalid interleaved IDs: %v", e.Err)
}

// ErrClientRTPInfoInvalid is returned in case of an invalid RTP-Info header.
type ErrClientRTPInfoInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientRTPInfoInvalid) Error() string {
	return fmt.Sprintf("invalid RTP-Info: %v", e.Err)
}

// ErrClientUnassignedChannel is returned when data arrives on a channel that was never set up.
type ErrClientUnassignedChannel struct {
	Channel int
}

// Error implements the error interface.
func (e ErrClientUnassignedChannel) Error() string {
	return fmt.Sprintf("received data on unassigned channel %d", e.Channel)
}

// ErrClientTerminated is returned when the session is used after a failure or a teardown.
type ErrClientTerminated struct{}

// Error implements the error interface.
func (e ErrClientTerminated) Error() string {
	return "terminated"
}

// ErrClientUnexpectedResponse is returned when a response doesn't match any request.
type ErrClientUnexpectedResponse struct {
	CSeq string
}

// Error implements the error interface.
func (e ErrClientUnexpectedResponse) Error() string {
	return fmt.Sprintf("received a response with CSeq %q, that doesn't match any request", e.CSeq)
}
