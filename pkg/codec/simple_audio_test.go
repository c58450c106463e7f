package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func uint16Ptr(v uint16) *uint16 {
	return &v
}

func TestSimpleAudioDemuxer(t *testing.T) {
	for _, ca := range []struct {
		encodingName string
		clockRate    uint32
		channels     *uint16
		payloadSize  int
		frameLength  uint32
	}{
		{"PCMU", 8000, nil, 160, 160},
		{"PCMA", 8000, uint16Ptr(1), 320, 320},
		{"L8", 11025, uint16Ptr(2), 100, 50},
		{"L16", 44100, uint16Ptr(2), 1764, 441},
		{"G726-16", 8000, nil, 40, 160},
		{"G726-24", 8000, nil, 60, 160},
		{"G726-32", 8000, nil, 80, 160},
		{"G726-40", 8000, nil, 100, 160},
	} {
		t.Run(ca.encodingName, func(t *testing.T) {
			d, err := New("audio", ca.encodingName, ca.clockRate, ca.channels, "")
			require.NoError(t, err)

			params, ok := d.Parameters().(*SimpleAudioParameters)
			require.True(t, ok)
			require.Equal(t, ca.clockRate, params.ClockRate)

			payload := make([]byte, ca.payloadSize)

			err = d.Push(testPacket(1, 1000, false, payload))
			require.NoError(t, err)

			it, err := d.Pull()
			require.NoError(t, err)
			require.Equal(t, &AudioFrame{
				Timestamp:   testTimestamp(1000),
				FrameLength: ca.frameLength,
				Data:        payload,
			}, it)

			it, err = d.Pull()
			require.NoError(t, err)
			require.Nil(t, it)
		})
	}
}

func TestSimpleAudioDemuxerErrors(t *testing.T) {
	for _, ca := range []struct {
		name         string
		encodingName string
		channels     *uint16
		payload      []byte
		err          string
	}{
		{
			"empty",
			"PCMU",
			nil,
			[]byte{},
			"empty payload (seq=1)",
		},
		{
			"remainder",
			"L16",
			uint16Ptr(2),
			[]byte{1, 2, 3, 4, 5, 6},
			"payload of 6 bytes is not a multiple of the sample size of 32 bits (seq=1)",
		},
		{
			"g726 remainder",
			"G726-24",
			nil,
			[]byte{1, 2},
			"payload of 2 bytes is not a multiple of the sample size of 3 bits (seq=1)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			d, err := New("audio", ca.encodingName, 8000, ca.channels, "")
			require.NoError(t, err)

			err = d.Push(testPacket(1, 0, false, ca.payload))
			require.EqualError(t, err, ca.err)
		})
	}
}
