package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		{Type: REQ, Timestamp: 0, Pid: 0},
		{Type: ACK, Timestamp: 42, Pid: 7},
		{Type: REL, Timestamp: -1, Pid: 3},
	}

	for _, m := range cases {
		buf := m.Encode()
		assert.Len(t, buf, WireSize)

		decoded, err := DecodeMessage(buf[:])
		require.NoError(t, err)
		assert.Equal(t, m, decoded)
	}
}

func TestDecodeMessage_RejectsWrongLength(t *testing.T) {
	_, err := DecodeMessage([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "REQ", REQ.String())
	assert.Equal(t, "ACK", ACK.String())
	assert.Equal(t, "REL", REL.String())
}
