package headers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrcore/camrtsp/pkg/base"
)

func uint32Ptr(v uint32) *uint32 {
	return &v
}

var casesTransport = []struct {
	name string
	vin  base.HeaderValue
	vout base.HeaderValue
	h    Transport
}{
	{
		"interleaved",
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=0-1`},
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=0-1`},
		Transport{
			InterleavedIDs: &[2]int{0, 1},
		},
	},
	{
		"interleaved with ssrc and mode",
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=2-3;ssrc=30a98ee7;mode="PLAY"`},
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=2-3;ssrc=30A98EE7;mode=play`},
		Transport{
			InterleavedIDs: &[2]int{2, 3},
			SSRC:           uint32Ptr(0x30a98ee7),
			ModePlay:       true,
		},
	},
	{
		"single channel",
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=4`},
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=4-5`},
		Transport{
			InterleavedIDs: &[2]int{4, 5},
		},
	},
	{
		"short ssrc",
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=0-1;ssrc= 5DC2A3`},
		base.HeaderValue{`RTP/AVP/TCP;unicast;interleaved=0-1;ssrc=005DC2A3`},
		Transport{
			InterleavedIDs: &[2]int{0, 1},
			SSRC:           uint32Ptr(0x5dc2a3),
		},
	},
}

func TestTransportUnmarshal(t *testing.T) {
	for _, ca := range casesTransport {
		t.Run(ca.name, func(t *testing.T) {
			var h Transport
			err := h.Unmarshal(ca.vin)
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
		})
	}
}

func TestTransportMarshal(t *testing.T) {
	for _, ca := range casesTransport {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.vout, ca.h.Marshal())
		})
	}
}

func TestTransportUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		hv   base.HeaderValue
		err  string
	}{
		{
			"empty",
			base.HeaderValue{},
			"value not provided",
		},
		{
			"2 values",
			base.HeaderValue{"a", "b"},
			"value provided multiple times ([a b])",
		},
		{
			"udp",
			base.HeaderValue{`RTP/AVP;unicast;client_port=14186-14187`},
			"unsupported protocol (RTP/AVP)",
		},
		{
			"invalid interleaved",
			base.HeaderValue{`RTP/AVP/TCP;interleaved=aa-1`},
			"invalid interleaved channel (aa-1)",
		},
		{
			"non adjacent interleaved",
			base.HeaderValue{`RTP/AVP/TCP;interleaved=0-2`},
			"interleaved channels are not adjacent (0-2)",
		},
		{
			"invalid ssrc",
			base.HeaderValue{`RTP/AVP/TCP;interleaved=0-1;ssrc=zzz`},
			"invalid SSRC (zzz)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Transport
			err := h.Unmarshal(ca.hv)
			require.EqualError(t, err, ca.err)
		})
	}
}

func FuzzTransportUnmarshal(f *testing.F) {
	for _, ca := range casesTransport {
		f.Add(ca.vin[0])
	}

	f.Fuzz(func(_ *testing.T, b string) {
		var h Transport
		h.Unmarshal(base.HeaderValue{b}) //nolint:errcheck
	})
}
