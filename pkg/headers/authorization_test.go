package headers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrcore/camrtsp/pkg/base"
)

var casesAuthorization = []struct {
	name string
	vin  base.HeaderValue
	vout base.HeaderValue
	h    Authorization
}{
	{
		"basic",
		base.HeaderValue{"Basic bXl1c2VyOm15cGFzcw=="},
		base.HeaderValue{"Basic bXl1c2VyOm15cGFzcw=="},
		Authorization{
			Method:    AuthBasic,
			BasicUser: "myuser",
			BasicPass: "mypass",
		},
	},
	{
		"digest md5",
		base.HeaderValue{`Digest username="admin", realm="4419b63f5e51", nonce="8b84a3b789283a8bea8da7fa7d41f08b", ` +
			`uri="rtsp://192.168.1.10:554/cam", response="c072ae90eb4a27f4cdcb90d62266b2a1"`},
		base.HeaderValue{`Digest username="admin", realm="4419b63f5e51", nonce="8b84a3b789283a8bea8da7fa7d41f08b", ` +
			`uri="rtsp://192.168.1.10:554/cam", response="c072ae90eb4a27f4cdcb90d62266b2a1", algorithm="MD5"`},
		Authorization{
			Method:   AuthDigestMD5,
			Username: "admin",
			Realm:    "4419b63f5e51",
			Nonce:    "8b84a3b789283a8bea8da7fa7d41f08b",
			URI:      "rtsp://192.168.1.10:554/cam",
			Response: "c072ae90eb4a27f4cdcb90d62266b2a1",
		},
	},
	{
		"digest sha256 with opaque",
		base.HeaderValue{`Digest username="admin", realm="IP Camera", nonce="0x1234", ` +
			`uri="rtsp://cam/stream", response="abcd", opaque="5ccc", algorithm="SHA-256"`},
		base.HeaderValue{`Digest username="admin", realm="IP Camera", nonce="0x1234", ` +
			`uri="rtsp://cam/stream", response="abcd", opaque="5ccc", algorithm="SHA-256"`},
		Authorization{
			Method:   AuthDigestSHA256,
			Username: "admin",
			Realm:    "IP Camera",
			Nonce:    "0x1234",
			URI:      "rtsp://cam/stream",
			Response: "abcd",
			Opaque:   stringPtr("5ccc"),
		},
	},
}

func TestAuthorizationUnmarshal(t *testing.T) {
	for _, ca := range casesAuthorization {
		t.Run(ca.name, func(t *testing.T) {
			var h Authorization
			err := h.Unmarshal(ca.vin)
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
		})
	}
}

func TestAuthorizationMarshal(t *testing.T) {
	for _, ca := range casesAuthorization {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.vout, ca.h.Marshal())
		})
	}
}

func TestAuthorizationUnmarshalErrors(t *testing.T) {
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
			"no keys",
			base.HeaderValue{"Basic"},
			"unable to split between method and keys (Basic)",
		},
		{
			"invalid basic encoding",
			base.HeaderValue{"Basic aaa"},
			"invalid value",
		},
		{
			"basic without colon",
			base.HeaderValue{"Basic bXl1c2Vy"},
			"invalid value",
		},
		{
			"invalid method",
			base.HeaderValue{"Custom abc"},
			"invalid method (Custom)",
		},
		{
			"missing username",
			base.HeaderValue{`Digest realm="a", nonce="b", uri="c", response="d"`},
			"username is missing",
		},
		{
			"missing response",
			base.HeaderValue{`Digest username="u", realm="a", nonce="b", uri="c"`},
			"response is missing",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Authorization
			err := h.Unmarshal(ca.hv)
			require.EqualError(t, err, ca.err)
		})
	}
}

func FuzzAuthorizationUnmarshal(f *testing.F) {
	for _, ca := range casesAuthorization {
		f.Add(ca.vin[0])
	}

	f.Fuzz(func(_ *testing.T, b string) {
		var h Authorization
		h.Unmarshal(base.HeaderValue{b}) //nolint:errcheck
	})
}
