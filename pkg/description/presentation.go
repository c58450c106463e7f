// Package description contains the description of a presentation,
// obtained from the SDP returned by DESCRIBE.
package description

import (
	"fmt"
	"strings"

	psdp "github.com/pion/sdp/v3"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/headers"
)

// Presentation is the description of a RTSP presentation.
type Presentation struct {
	// URL used to resolve relative control attributes
	BaseURL *base.URL

	// aggregate control URL, used by PLAY and TEARDOWN
	Control *base.URL

	// whether the server accepts the X-Dynamic-Rate header
	AcceptDynamicRate bool

	Streams []*Stream

	// raw session description
	SDP *psdp.SessionDescription
}

// JoinControl resolves a control attribute against a base URL.
// "*" refers to the base URL itself.
func JoinControl(baseURL *base.URL, control string) (*base.URL, error) {
	u, err := baseURL.Join(control)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "rtsp" {
		return nil, fmt.Errorf("control attribute %q points to an unsupported scheme", control)
	}

	return u, nil
}

// Unmarshal decodes a presentation from a SDP.
func (p *Presentation) Unmarshal(baseURL *base.URL, byts []byte) error {
	var sd psdp.SessionDescription
	err := sd.Unmarshal(byts)
	if err != nil {
		return fmt.Errorf("invalid SDP: %w", err)
	}

	p.BaseURL = baseURL
	p.SDP = &sd

	control, ok := sd.Attribute("control")
	if ok {
		p.Control, err = JoinControl(baseURL, control)
		if err != nil {
			return err
		}
	} else {
		// Specification: RFC 2326, appendix C.1.1
		p.Control = baseURL.Clone()
	}

	p.Streams = make([]*Stream, len(sd.MediaDescriptions))

	for i, md := range sd.MediaDescriptions {
		s := &Stream{}
		err = s.unmarshal(baseURL, md, len(sd.MediaDescriptions) == 1)
		if err != nil {
			return fmt.Errorf("unable to parse stream %d: %w", i, err)
		}
		p.Streams[i] = s
	}

	return nil
}

// ParseDescribe decodes the response to a DESCRIBE request.
// The base URL is taken from Content-Base, then from Content-Location,
// then from the request URL.
func ParseDescribe(requestURL *base.URL, res *base.Response) (*Presentation, error) {
	ct := res.Header.Get("Content-Type")
	if ct == "" {
		return nil, fmt.Errorf("Content-Type header is missing")
	}

	// parameters like charset are allowed
	ct, _, _ = strings.Cut(ct, ";")
	if strings.TrimSpace(ct) != "application/sdp" {
		return nil, fmt.Errorf("unsupported Content-Type '%s'", ct)
	}

	baseURL := requestURL

	for _, key := range []string{"Content-Base", "Content-Location"} {
		v := res.Header.Get(key)
		if v == "" {
			continue
		}

		u, err := base.ParseURL(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s '%s': %w", key, v, err)
		}
		baseURL = u
		break
	}

	p := &Presentation{}
	err := p.Unmarshal(baseURL, res.Body)
	if err != nil {
		return nil, err
	}

	p.AcceptDynamicRate = res.Header.Get(base.HeaderXAcceptDynamicRate) == "1"

	return p, nil
}

// FindStream returns the index of the stream with the given control URL.
func (p *Presentation) FindStream(control *base.URL) (int, bool) {
	for i, s := range p.Streams {
		if s.Control.String() == control.String() {
			return i, true
		}
	}
	return 0, false
}

// ApplyRTPInfo fills the initial state of set up streams with the content
// of the RTP-Info header of a PLAY response.
// Entries referring to streams that were not set up are skipped, since some
// cameras describe all streams.
func (p *Presentation) ApplyRTPInfo(ri headers.RTPInfo) error {
	for _, e := range ri {
		u, err := JoinControl(p.BaseURL, e.URL)
		if err != nil {
			return err
		}

		i, ok := p.FindStream(u)
		if !ok {
			return fmt.Errorf("unable to find stream of RTP-Info entry %v", u)
		}

		s := p.Streams[i]
		if s.State != StreamStateInit {
			continue
		}

		if e.SequenceNumber != nil {
			s.InitialSeq = e.SequenceNumber
		}

		if e.RTPTime != nil {
			s.InitialRTPTime = e.RTPTime
		}

		if e.SSRC != nil {
			s.SSRC = e.SSRC
		}
	}

	return nil
}
