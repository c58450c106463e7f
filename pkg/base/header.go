package base

import (
	"bufio"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	headerMaxEntryCount  = 255
	headerMaxKeyLength   = 1024
	headerMaxValueLength = 2048
)

// vendor headers used to negotiate dynamic rate.
const (
	HeaderXDynamicRate       = "X-Dynamic-Rate"
	HeaderXAcceptDynamicRate = "X-Accept-Dynamic-Rate"
)

func headerKeyNormalize(in string) string {
	switch strings.ToLower(in) {
	case "rtp-info":
		return "RTP-Info"

	case "www-authenticate":
		return "WWW-Authenticate"

	case "cseq":
		return "CSeq"
	}
	return http.CanonicalHeaderKey(in)
}

// HeaderValue is an header value.
type HeaderValue []string

// Header is a RTSP header, present in both Requests and Responses.
type Header map[string]HeaderValue

// Get returns the first value of a header, or "" when the header is missing.
// Keys are normalized.
func (h Header) Get(key string) string {
	v := h[headerKeyNormalize(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (h *Header) unmarshal(br *bufio.Reader) error {
	*h = make(Header)

	for {
		byt, err := br.ReadByte()
		if err != nil {
			return err
		}

		if byt == '\r' {
			err = readByteEqual(br, '\n')
			if err != nil {
				return err
			}

			break
		}

		if len(*h) >= headerMaxEntryCount {
			return fmt.Errorf("headers count exceeds %d", headerMaxEntryCount)
		}

		key := string([]byte{byt})
		byts, err := readBytesLimited(br, ':', headerMaxKeyLength-1)
		if err != nil {
			return fmt.Errorf("value is missing")
		}

		key += string(byts[:len(byts)-1])
		key = headerKeyNormalize(key)

		// https://tools.ietf.org/html/rfc2616
		// The field value MAY be preceded by any amount of spaces
		for {
			byt, err = br.ReadByte()
			if err != nil {
				return err
			}

			if byt != ' ' {
				break
			}
		}
		br.UnreadByte() //nolint:errcheck

		byts, err = readBytesLimited(br, '\r', headerMaxValueLength)
		if err != nil {
			return err
		}
		val := string(byts[:len(byts)-1])

		err = readByteEqual(br, '\n')
		if err != nil {
			return err
		}

		(*h)[key] = append((*h)[key], val)
	}

	return nil
}

func (h Header) sortedKeys() []string {
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (h Header) marshalSize() int {
	n := 0

	for _, key := range h.sortedKeys() {
		for _, val := range h[key] {
			n += len(key) + 2 + len(val) + 2
		}
	}

	return n + 2
}

func (h Header) marshalTo(buf []byte) int {
	pos := 0

	// sort headers by key
	// in order to obtain deterministic results
	for _, key := range h.sortedKeys() {
		for _, val := range h[key] {
			pos += copy(buf[pos:], key+": "+val+"\r\n")
		}
	}

	pos += copy(buf[pos:], "\r\n")

	return pos
}
