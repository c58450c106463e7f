package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/base"
)

// Session is a Session header.
type Session struct {
	// session id
	Session string

	// (optional) a timeout, in seconds
	Timeout *uint
}

// Unmarshal decodes a Session header.
func (h *Session) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	id, rest, _ := strings.Cut(v[0], ";")
	if id == "" {
		return fmt.Errorf("invalid value (%v)", v)
	}
	h.Session = id
	h.Timeout = nil

	if rest == "" {
		return nil
	}

	kvs, err := keyValParse(rest, ';')
	if err != nil {
		return err
	}

	for k, v := range kvs {
		if strings.TrimSpace(k) != "timeout" {
			continue
		}

		tmp, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		uiv := uint(tmp)
		h.Timeout = &uiv
	}

	return nil
}

// Marshal encodes a Session header.
func (h Session) Marshal() base.HeaderValue {
	ret := h.Session

	if h.Timeout != nil {
		ret += ";timeout=" + strconv.FormatUint(uint64(*h.Timeout), 10)
	}

	return base.HeaderValue{ret}
}
