package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/base"
)

// RTPInfoEntry is an entry of a RTP-Info header.
type RTPInfoEntry struct {
	// stream URL, possibly relative to the base URL
	URL string

	SequenceNumber *uint16
	RTPTime        *uint32
	SSRC           *uint32
}

// RTPInfo is a RTP-Info header.
type RTPInfo []*RTPInfoEntry

// Unmarshal decodes a RTP-Info header.
func (h *RTPInfo) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	*h = nil

	for _, entry := range strings.Split(v[0], ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		e := &RTPInfoEntry{}
		parts := strings.Split(entry, ";")

		u, ok := strings.CutPrefix(parts[0], "url=")
		if !ok {
			return fmt.Errorf("URL is missing (%v)", entry)
		}
		e.URL = u

		for _, kv := range parts[1:] {
			k, val, ok := strings.Cut(strings.TrimSpace(kv), "=")
			if !ok {
				return fmt.Errorf("unable to parse key-value (%v)", kv)
			}

			switch k {
			case "seq":
				tmp, err := strconv.ParseUint(val, 10, 16)
				if err != nil {
					return fmt.Errorf("invalid seq (%v)", val)
				}
				seq := uint16(tmp)
				e.SequenceNumber = &seq

			case "rtptime":
				tmp, err := strconv.ParseUint(val, 10, 32)
				if err != nil {
					return fmt.Errorf("invalid rtptime (%v)", val)
				}
				rtpTime := uint32(tmp)
				e.RTPTime = &rtpTime

			case "ssrc":
				tmp, err := strconv.ParseUint(val, 16, 32)
				if err != nil {
					return fmt.Errorf("invalid ssrc (%v)", val)
				}
				ssrc := uint32(tmp)
				e.SSRC = &ssrc
			}
		}

		*h = append(*h, e)
	}

	return nil
}

// Marshal encodes a RTP-Info header.
func (h RTPInfo) Marshal() base.HeaderValue {
	rets := make([]string, len(h))

	for i, e := range h {
		ret := "url=" + e.URL

		if e.SequenceNumber != nil {
			ret += ";seq=" + strconv.FormatUint(uint64(*e.SequenceNumber), 10)
		}

		if e.RTPTime != nil {
			ret += ";rtptime=" + strconv.FormatUint(uint64(*e.RTPTime), 10)
		}

		if e.SSRC != nil {
			ret += ";ssrc=" + fmt.Sprintf("%08X", *e.SSRC)
		}

		rets[i] = ret
	}

	return base.HeaderValue{strings.Join(rets, ",")}
}
