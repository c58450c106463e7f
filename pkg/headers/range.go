package headers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nvrcore/camrtsp/pkg/base"
)

// Range is a Range header expressed in normal play time.
type Range struct {
	Start time.Duration

	// (optional) end
	End *time.Duration
}

func parseNPT(s string) (time.Duration, error) {
	if s == "now" {
		return 0, nil
	}

	var secs float64

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return 0, fmt.Errorf("invalid NPT time (%v)", s)
		}

		hours, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return 0, err
		}

		mins, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return 0, err
		}

		tmp, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, err
		}

		secs = float64(hours*3600+mins*60) + tmp
	} else {
		tmp, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		secs = tmp
	}

	if secs < 0 {
		return 0, fmt.Errorf("negative NPT time (%v)", s)
	}

	return time.Duration(secs * float64(time.Second)), nil
}

// Unmarshal decodes a Range header.
func (h *Range) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	// drop the optional ;time= parameter
	v0, _, _ := strings.Cut(v[0], ";")

	val, ok := strings.CutPrefix(v0, "npt=")
	if !ok {
		return fmt.Errorf("unsupported range unit (%v)", v0)
	}

	start, end, ok := strings.Cut(val, "-")
	if !ok {
		return fmt.Errorf("invalid value (%v)", v0)
	}

	var err error
	h.Start, err = parseNPT(start)
	if err != nil {
		return err
	}

	h.End = nil
	if end != "" {
		tmp, err := parseNPT(end)
		if err != nil {
			return err
		}
		h.End = &tmp
	}

	return nil
}

func marshalNPT(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Marshal encodes a Range header.
func (h Range) Marshal() base.HeaderValue {
	ret := "npt=" + marshalNPT(h.Start) + "-"
	if h.End != nil {
		ret += marshalNPT(*h.End)
	}
	return base.HeaderValue{ret}
}
