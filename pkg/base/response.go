package base

import (
	"bufio"
	"fmt"
	"strconv"
)

const (
	responseMaxProtocolLength   = 64
	responseMaxStatusCodeLength = 4
	responseMaxStatusMessage    = 255
)

// StatusCode is the status code of a RTSP response.
type StatusCode int

// status codes.
const (
	StatusOK                        StatusCode = 200
	StatusMovedPermanently          StatusCode = 301
	StatusFound                     StatusCode = 302
	StatusBadRequest                StatusCode = 400
	StatusUnauthorized              StatusCode = 401
	StatusForbidden                 StatusCode = 403
	StatusNotFound                  StatusCode = 404
	StatusMethodNotAllowed          StatusCode = 405
	StatusNotAcceptable             StatusCode = 406
	StatusRequestTimeout            StatusCode = 408
	StatusUnsupportedMediaType      StatusCode = 415
	StatusParameterNotUnderstood    StatusCode = 451
	StatusNotEnoughBandwidth        StatusCode = 453
	StatusSessionNotFound           StatusCode = 454
	StatusMethodNotValidInThisState StatusCode = 455
	StatusInvalidRange              StatusCode = 457
	StatusAggregateNotAllowed       StatusCode = 459
	StatusOnlyAggregateAllowed      StatusCode = 460
	StatusUnsupportedTransport      StatusCode = 461
	StatusInternalServerError       StatusCode = 500
	StatusNotImplemented            StatusCode = 501
	StatusBadGateway                StatusCode = 502
	StatusServiceUnavailable        StatusCode = 503
	StatusGatewayTimeout            StatusCode = 504
	StatusRTSPVersionNotSupported   StatusCode = 505
	StatusOptionNotSupported        StatusCode = 551
)

// StatusMessages contains the status messages associated with each status code.
var StatusMessages = map[StatusCode]string{
	StatusOK:                        "OK",
	StatusMovedPermanently:          "Moved Permanently",
	StatusFound:                     "Found",
	StatusBadRequest:                "Bad Request",
	StatusUnauthorized:              "Unauthorized",
	StatusForbidden:                 "Forbidden",
	StatusNotFound:                  "Not Found",
	StatusMethodNotAllowed:          "Method Not Allowed",
	StatusNotAcceptable:             "Not Acceptable",
	StatusRequestTimeout:            "Request Timeout",
	StatusUnsupportedMediaType:      "Unsupported Media Type",
	StatusParameterNotUnderstood:    "Parameter Not Understood",
	StatusNotEnoughBandwidth:        "Not Enough Bandwidth",
	StatusSessionNotFound:           "Session Not Found",
	StatusMethodNotValidInThisState: "Method Not Valid In This State",
	StatusInvalidRange:              "Invalid Range",
	StatusAggregateNotAllowed:       "Aggregate Operation Not Allowed",
	StatusOnlyAggregateAllowed:      "Only Aggregate Operation Allowed",
	StatusUnsupportedTransport:      "Unsupported Transport",
	StatusInternalServerError:       "Internal Server Error",
	StatusNotImplemented:            "Not Implemented",
	StatusBadGateway:                "Bad Gateway",
	StatusServiceUnavailable:        "Service Unavailable",
	StatusGatewayTimeout:            "Gateway Timeout",
	StatusRTSPVersionNotSupported:   "RTSP Version Not Supported",
	StatusOptionNotSupported:        "Option Not Supported",
}

// Response is a RTSP response.
type Response struct {
	// numeric status code
	StatusCode StatusCode

	// status message
	StatusMessage string

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// Unmarshal reads a response.
func (res *Response) Unmarshal(br *bufio.Reader) error {
	byts, err := readBytesLimited(br, ' ', responseMaxProtocolLength)
	if err != nil {
		return err
	}
	proto := string(byts[:len(byts)-1])

	if proto != rtspProtocol10 {
		return fmt.Errorf("expected '%s', got '%s'", rtspProtocol10, proto)
	}

	byts, err = readBytesLimited(br, ' ', responseMaxStatusCodeLength)
	if err != nil {
		return err
	}

	tmp, err := strconv.ParseUint(string(byts[:len(byts)-1]), 10, 31)
	if err != nil {
		return fmt.Errorf("unable to parse status code")
	}
	res.StatusCode = StatusCode(tmp)

	byts, err = readBytesLimited(br, '\r', responseMaxStatusMessage)
	if err != nil {
		return err
	}
	res.StatusMessage = string(byts[:len(byts)-1])

	err = readByteEqual(br, '\n')
	if err != nil {
		return err
	}

	err = res.Header.unmarshal(br)
	if err != nil {
		return err
	}

	return (*body)(&res.Body).unmarshal(res.Header, br)
}

func (res Response) firstLine() string {
	msg := res.StatusMessage
	if msg == "" {
		msg = StatusMessages[res.StatusCode]
	}
	return rtspProtocol10 + " " + strconv.FormatInt(int64(res.StatusCode), 10) + " " + msg + "\r\n"
}

// MarshalSize returns the size of a Response.
func (res Response) MarshalSize() int {
	n := len(res.firstLine())

	if len(res.Body) != 0 {
		res.Header["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(res.Body)), 10)}
	}

	n += res.Header.marshalSize()
	n += body(res.Body).marshalSize()

	return n
}

// MarshalTo writes a Response.
func (res Response) MarshalTo(buf []byte) (int, error) {
	pos := copy(buf, res.firstLine())

	if len(res.Body) != 0 {
		res.Header["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(res.Body)), 10)}
	}

	pos += res.Header.marshalTo(buf[pos:])
	pos += body(res.Body).marshalTo(buf[pos:])

	return pos, nil
}

// Marshal writes a Response.
func (res Response) Marshal() ([]byte, error) {
	buf := make([]byte, res.MarshalSize())
	_, err := res.MarshalTo(buf)
	return buf, err
}

// String implements fmt.Stringer.
func (res Response) String() string {
	buf, _ := res.Marshal()
	return string(buf)
}
