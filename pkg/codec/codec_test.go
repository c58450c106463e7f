package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFMTP(t *testing.T) {
	require.Nil(t, DecodeFMTP(""))

	require.Equal(t, map[string]string{
		"packetization-mode":   "1",
		"profile-level-id":     "5046302",
		"sprop-parameter-sets": "Z00AHpWoLQ9puAgICBAAAAAB,aO48gAAAAAE=",
	}, DecodeFMTP("packetization-mode=1; Profile-Level-Id=5046302;"+
		"sprop-parameter-sets=Z00AHpWoLQ9puAgICBAAAAAB,aO48gAAAAAE=;"))
}

func TestParseParameters(t *testing.T) {
	params, err := ParseParameters("video", "H264", 90000, nil,
		"packetization-mode=1;sprop-parameter-sets=Z00AHpWoLQ9puAgICBAAAAAB,aO48gAAAAAE=")
	require.NoError(t, err)
	require.IsType(t, &H264Parameters{}, params)

	params, err = ParseParameters("audio", "mpeg4-generic", 48000, uint16Ptr(1),
		"mode=AAC-hbr;sizelength=13;indexlength=3;indexdeltalength=3;config=1188")
	require.NoError(t, err)
	require.IsType(t, &AACParameters{}, params)

	params, err = ParseParameters("application", "vnd.onvif.metadata", 90000, nil, "")
	require.NoError(t, err)
	require.IsType(t, &MessageParameters{}, params)

	params, err = ParseParameters("audio", "PCMA", 8000, nil, "")
	require.NoError(t, err)
	require.IsType(t, &SimpleAudioParameters{}, params)

	params, err = ParseParameters("video", "H265", 90000, nil, "")
	require.NoError(t, err)
	require.Nil(t, params)

	params, err = ParseParameters("audio", "opus", 48000, uint16Ptr(2), "")
	require.NoError(t, err)
	require.Nil(t, params)
}

func TestNewErrors(t *testing.T) {
	for _, ca := range []struct {
		name         string
		media        string
		encodingName string
		clockRate    uint32
		fmtp         string
		err          string
	}{
		{
			"h264 clock rate",
			"video",
			"H264",
			8000,
			"sprop-parameter-sets=Z00AHpWoLQ9puAgICBAAAAAB,aO48gAAAAAE=",
			"H264 clock rate must be 90000, got 8000",
		},
		{
			"h264 without fmtp",
			"video",
			"H264",
			90000,
			"",
			"H264 requires format-specific params",
		},
		{
			"unsupported",
			"video",
			"JPEG",
			90000,
			"",
			"unsupported codec",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := New(ca.media, ca.encodingName, ca.clockRate, nil, ca.fmtp)
			require.EqualError(t, err, ca.err)
		})
	}
}
