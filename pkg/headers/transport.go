package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/base"
)

// Transport is a Transport header.
// Only RTP over RTSP/TCP is represented.
type Transport struct {
	// interleaved channel ids (RTP, RTCP)
	InterleavedIDs *[2]int

	// (optional) SSRC of the packets sent by the server
	SSRC *uint32

	// (optional) whether mode=play was announced
	ModePlay bool
}

func parseInterleavedIDs(val string) (*[2]int, error) {
	first, second, hasSecond := strings.Cut(val, "-")

	n1, err := strconv.ParseUint(first, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid interleaved channel (%v)", val)
	}

	if !hasSecond {
		return &[2]int{int(n1), int(n1) + 1}, nil
	}

	n2, err := strconv.ParseUint(second, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid interleaved channel (%v)", val)
	}

	if n2 != n1+1 {
		return nil, fmt.Errorf("interleaved channels are not adjacent (%v)", val)
	}

	return &[2]int{int(n1), int(n2)}, nil
}

// Unmarshal decodes a Transport header.
func (h *Transport) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	parts := strings.Split(v[0], ";")

	if parts[0] != "RTP/AVP/TCP" {
		return fmt.Errorf("unsupported protocol (%v)", parts[0])
	}

	*h = Transport{}

	for _, part := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(part), "=")

		switch key {
		case "interleaved":
			ids, err := parseInterleavedIDs(val)
			if err != nil {
				return err
			}
			h.InterleavedIDs = ids

		case "ssrc":
			// some servers pad the SSRC with zeros or spaces
			val = strings.TrimLeft(strings.TrimSpace(val), "0")
			if val == "" {
				val = "0"
			}

			tmp, err := strconv.ParseUint(val, 16, 32)
			if err != nil {
				return fmt.Errorf("invalid SSRC (%v)", val)
			}
			ssrc := uint32(tmp)
			h.SSRC = &ssrc

		case "mode":
			h.ModePlay = strings.EqualFold(strings.Trim(val, "\""), "play")

		case "unicast":
		}
	}

	return nil
}

// Marshal encodes a Transport header.
func (h Transport) Marshal() base.HeaderValue {
	ret := "RTP/AVP/TCP;unicast"

	if h.InterleavedIDs != nil {
		ret += ";interleaved=" + strconv.FormatInt(int64(h.InterleavedIDs[0]), 10) +
			"-" + strconv.FormatInt(int64(h.InterleavedIDs[1]), 10)
	}

	if h.SSRC != nil {
		ret += ";ssrc=" + fmt.Sprintf("%08X", *h.SSRC)
	}

	if h.ModePlay {
		ret += ";mode=play"
	}

	return base.HeaderValue{ret}
}
