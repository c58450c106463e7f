package base

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var casesResponse = []struct {
	name string
	byts []byte
	res  Response
}{
	{
		"ok with session",
		[]byte("RTSP/1.0 200 OK\r\n" +
			"CSeq: 1\r\n" +
			"Session: 634214675641;timeout=60\r\n" +
			"Transport: RTP/AVP/TCP;unicast;interleaved=0-1;ssrc=30a98ee7\r\n" +
			"\r\n"),
		Response{
			StatusCode:    StatusOK,
			StatusMessage: "OK",
			Header: Header{
				"CSeq":      HeaderValue{"1"},
				"Session":   HeaderValue{"634214675641;timeout=60"},
				"Transport": HeaderValue{"RTP/AVP/TCP;unicast;interleaved=0-1;ssrc=30a98ee7"},
			},
		},
	},
	{
		"unauthorized with multiple challenges",
		[]byte("RTSP/1.0 401 Unauthorized\r\n" +
			"CSeq: 2\r\n" +
			"WWW-Authenticate: Digest realm=\"Login to 4K05DCAPAZE3CE7\", nonce=\"a53e9e7b1d5cd3ac6e1fc4ab4d4b7b3a\"\r\n" +
			"WWW-Authenticate: Basic realm=\"Login to 4K05DCAPAZE3CE7\"\r\n" +
			"\r\n"),
		Response{
			StatusCode:    StatusUnauthorized,
			StatusMessage: "Unauthorized",
			Header: Header{
				"CSeq": HeaderValue{"2"},
				"WWW-Authenticate": HeaderValue{
					"Digest realm=\"Login to 4K05DCAPAZE3CE7\", nonce=\"a53e9e7b1d5cd3ac6e1fc4ab4d4b7b3a\"",
					"Basic realm=\"Login to 4K05DCAPAZE3CE7\"",
				},
			},
		},
	},
	{
		"describe with body",
		[]byte("RTSP/1.0 200 OK\r\n" +
			"CSeq: 3\r\n" +
			"Content-Base: rtsp://example.com/media/\r\n" +
			"Content-Length: 48\r\n" +
			"Content-Type: application/sdp\r\n" +
			"\r\n" +
			"v=0\r\n" +
			"o=- 0 0 IN IP4 127.0.0.1\r\n" +
			"s=stream\r\n" +
			"t=0 0\r\n"),
		Response{
			StatusCode:    StatusOK,
			StatusMessage: "OK",
			Header: Header{
				"CSeq":           HeaderValue{"3"},
				"Content-Base":   HeaderValue{"rtsp://example.com/media/"},
				"Content-Length": HeaderValue{"48"},
				"Content-Type":   HeaderValue{"application/sdp"},
			},
			Body: []byte("v=0\r\n" +
				"o=- 0 0 IN IP4 127.0.0.1\r\n" +
				"s=stream\r\n" +
				"t=0 0\r\n"),
		},
	},
}

func TestResponseUnmarshal(t *testing.T) {
	for _, ca := range casesResponse {
		t.Run(ca.name, func(t *testing.T) {
			var res Response
			err := res.Unmarshal(bufio.NewReader(bytes.NewBuffer(ca.byts)))
			require.NoError(t, err)
			require.Equal(t, ca.res, res)
		})
	}
}

func TestResponseMarshal(t *testing.T) {
	for _, ca := range casesResponse {
		t.Run(ca.name, func(t *testing.T) {
			buf, err := ca.res.Marshal()
			require.NoError(t, err)
			require.Equal(t, ca.byts, buf)
		})
	}
}

func TestResponseMarshalDefaultMessage(t *testing.T) {
	res := Response{
		StatusCode: StatusSessionNotFound,
		Header:     Header{},
	}

	buf, err := res.Marshal()
	require.NoError(t, err)
	require.Equal(t, "RTSP/1.0 454 Session Not Found\r\n\r\n", string(buf))
}

func TestResponseHeaderKeysAreNormalized(t *testing.T) {
	var res Response
	err := res.Unmarshal(bufio.NewReader(bytes.NewBufferString("RTSP/1.0 200 OK\r\n" +
		"cseq: 4\r\n" +
		"rtp-info: url=rtsp://example.com/trackID=0;seq=1;rtptime=2\r\n" +
		"content-base: rtsp://example.com/\r\n" +
		"\r\n")))
	require.NoError(t, err)
	require.Equal(t, "4", res.Header.Get("CSeq"))
	require.Equal(t, "url=rtsp://example.com/trackID=0;seq=1;rtptime=2", res.Header.Get("RTP-Info"))
	require.Equal(t, "rtsp://example.com/", res.Header.Get("Content-Base"))
	require.Equal(t, "", res.Header.Get("Content-Location"))
}

func TestResponseUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts []byte
		err  string
	}{
		{
			"invalid protocol",
			[]byte("HTTP/1.1 200 OK\r\n"),
			"expected 'RTSP/1.0', got 'HTTP/1.1'",
		},
		{
			"invalid code",
			[]byte("RTSP/1.0 abc OK\r\n"),
			"unable to parse status code",
		},
		{
			"too many content bytes",
			[]byte("RTSP/1.0 200 OK\r\nContent-Length: 999999\r\n\r\n"),
			"Content-Length exceeds 131072 (it's 999999)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var res Response
			err := res.Unmarshal(bufio.NewReader(bytes.NewBuffer(ca.byts)))
			require.EqualError(t, err, ca.err)
		})
	}
}

func FuzzResponseUnmarshal(f *testing.F) {
	for _, ca := range casesResponse {
		f.Add(ca.byts)
	}

	f.Fuzz(func(_ *testing.T, b []byte) {
		var res Response
		res.Unmarshal(bufio.NewReader(bytes.NewBuffer(b))) //nolint:errcheck
	})
}
