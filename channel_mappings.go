package camrtsp

import (
	"fmt"
)

// ChannelType is the kind of data carried by an interleaved channel.
type ChannelType int

// channel types.
const (
	ChannelTypeRTP ChannelType = iota
	ChannelTypeRTCP
)

// String implements fmt.Stringer.
func (t ChannelType) String() string {
	switch t {
	case ChannelTypeRTP:
		return "RTP"
	case ChannelTypeRTCP:
		return "RTCP"
	}
	return "unknown"
}

// ChannelMapping is the destination of an interleaved channel.
type ChannelMapping struct {
	Stream int
	Type   ChannelType
}

// ChannelMappings maps interleaved channels to streams.
// Each stream owns an even channel for RTP and the following odd channel for RTCP.
// The zero value is empty and ready to use.
type ChannelMappings struct {
	// stream index + 1 of each channel pair, 0 when unassigned
	pairs [128]int
}

// Assign assigns channel and channel+1 to a stream.
func (m *ChannelMappings) Assign(channel uint8, stream int) error {
	if (channel % 2) != 0 {
		return fmt.Errorf("channel %d is odd", channel)
	}

	if stream < 0 {
		return fmt.Errorf("invalid stream %d", stream)
	}

	if prev := m.pairs[channel/2]; prev != 0 {
		return fmt.Errorf("channel %d is already assigned to stream %d", channel, prev-1)
	}

	m.pairs[channel/2] = stream + 1
	return nil
}

// Lookup returns the destination of a channel.
func (m *ChannelMappings) Lookup(channel uint8) (ChannelMapping, bool) {
	s := m.pairs[channel/2]
	if s == 0 {
		return ChannelMapping{}, false
	}

	typ := ChannelTypeRTP
	if (channel % 2) != 0 {
		typ = ChannelTypeRTCP
	}

	return ChannelMapping{
		Stream: s - 1,
		Type:   typ,
	}, true
}

// NextUnassigned returns the smallest even channel that is not assigned.
func (m *ChannelMappings) NextUnassigned() (uint8, bool) {
	for i, s := range m.pairs {
		if s == 0 {
			return uint8(i * 2), true
		}
	}
	return 0, false
}
