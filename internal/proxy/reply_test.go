// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"testing"

	"github.com/bassosimone/dnstoy/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestReplyFailureIsWellFormed(t *testing.T) {
	buf := ReplyFailure(0xABCD, wire.RcodeServerFailure)

	msg, err := wire.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, uint16(0xABCD), msg.Header.ID)
	require.True(t, msg.Header.QR)
	require.Equal(t, uint8(wire.RcodeServerFailure), msg.Header.Rcode)
	require.Empty(t, msg.Questions)
	require.Empty(t, msg.Answers)
}

func TestFrameUnframeRoundTrip(t *testing.T) {
	raw := []byte("a raw dns message")
	framed := frame(raw)
	require.Equal(t, raw, unframe(framed))
	require.Len(t, framed, len(raw)+lengthPrefixSize)
}
