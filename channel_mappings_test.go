package camrtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelMappings(t *testing.T) {
	var m ChannelMappings

	ch, ok := m.NextUnassigned()
	require.True(t, ok)
	require.Equal(t, uint8(0), ch)

	err := m.Assign(0, 1)
	require.NoError(t, err)

	err = m.Assign(4, 0)
	require.NoError(t, err)

	ch, ok = m.NextUnassigned()
	require.True(t, ok)
	require.Equal(t, uint8(2), ch)

	for _, ca := range []struct {
		channel uint8
		ok      bool
		mapping ChannelMapping
	}{
		{0, true, ChannelMapping{Stream: 1, Type: ChannelTypeRTP}},
		{1, true, ChannelMapping{Stream: 1, Type: ChannelTypeRTCP}},
		{2, false, ChannelMapping{}},
		{3, false, ChannelMapping{}},
		{4, true, ChannelMapping{Stream: 0, Type: ChannelTypeRTP}},
		{5, true, ChannelMapping{Stream: 0, Type: ChannelTypeRTCP}},
		{255, false, ChannelMapping{}},
	} {
		mapping, ok := m.Lookup(ca.channel)
		require.Equal(t, ca.ok, ok, "channel %d", ca.channel)
		require.Equal(t, ca.mapping, mapping, "channel %d", ca.channel)
	}
}

func TestChannelMappingsErrors(t *testing.T) {
	var m ChannelMappings

	err := m.Assign(3, 0)
	require.EqualError(t, err, "channel 3 is odd")

	err = m.Assign(2, 0)
	require.NoError(t, err)

	err = m.Assign(2, 1)
	require.EqualError(t, err, "channel 2 is already assigned to stream 0")

	err = m.Assign(4, -1)
	require.EqualError(t, err, "invalid stream -1")
}

func TestChannelMappingsFull(t *testing.T) {
	var m ChannelMappings

	for i := 0; i < 128; i++ {
		ch, ok := m.NextUnassigned()
		require.True(t, ok)
		require.Equal(t, uint8(i*2), ch)

		err := m.Assign(ch, i)
		require.NoError(t, err)
	}

	_, ok := m.NextUnassigned()
	require.False(t, ok)

	mapping, ok := m.Lookup(255)
	require.True(t, ok)
	require.Equal(t, ChannelMapping{Stream: 127, Type: ChannelTypeRTCP}, mapping)
}

func TestChannelTypeString(t *testing.T) {
	require.Equal(t, "RTP", ChannelTypeRTP.String())
	require.Equal(t, "RTCP", ChannelTypeRTCP.String())
	require.Equal(t, "unknown", ChannelType(5).String())
}
