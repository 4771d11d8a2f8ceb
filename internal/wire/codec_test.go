// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleMessage() *Message {
	return &Message{
		Header: Header{ID: 0x1234, RD: true, QDCount: 1},
		Questions: []Question{
			{Name: "www.example.com", Type: 1, Class: 1},
		},
		Answers: []ResourceRecord{
			{Name: "www.example.com", Type: 1, Class: 1, TTL: 300, RDATA: []byte{1, 2, 3, 4}},
		},
		Authority: []ResourceRecord{
			{Name: "example.com", Type: 2, Class: 1, TTL: 300, RDATA: []byte("ns1.example.com")},
		},
		Additional: []ResourceRecord{
			{Name: "ns1.example.com", Type: 1, Class: 1, TTL: 300, RDATA: []byte{5, 6, 7, 8}},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)

	require.Equal(t, msg.Header.ID, decoded.Header.ID)
	require.True(t, decoded.Header.RD)
	require.Len(t, decoded.Questions, 1)
	require.Equal(t, "www.example.com", decoded.Questions[0].Name)
	require.Len(t, decoded.Answers, 1)
	require.Equal(t, "www.example.com", decoded.Answers[0].Name)
	require.Equal(t, []byte{1, 2, 3, 4}, decoded.Answers[0].RDATA)
	require.Len(t, decoded.Authority, 1)
	require.Equal(t, "example.com", decoded.Authority[0].Name)
	require.Len(t, decoded.Additional, 1)
	require.Equal(t, "ns1.example.com", decoded.Additional[0].Name)
}

func TestEncodeAppliesCompression(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	// Every occurrence of "example.com" beyond the first should be
	// expressed as a 2-byte pointer rather than a repeated literal
	// label run, so the encoded size must be under the size of the
	// same message with each name written out in full.
	naive := HeaderSize + 4 // header, QTYPE + QCLASS
	for _, section := range [][]ResourceRecord{msg.Answers, msg.Authority, msg.Additional} {
		for _, rr := range section {
			naive += 10 + len(rr.RDATA) // TYPE+CLASS+TTL+RDLENGTH, RDATA
		}
	}
	for _, n := range []string{"www.example.com", "www.example.com", "example.com", "ns1.example.com"} {
		naive += len(n) + 2
	}
	require.Less(t, len(buf), naive)
}

func TestStructuralViewMatchesDecode(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	view, err := StructuralView(buf)
	require.NoError(t, err)

	require.Equal(t, len(buf), view.Size)
	require.Equal(t, msg.Header.ID, view.ID)
	require.Equal(t, uint16(1), view.QDCount)
	require.Equal(t, uint16(1), view.ANCount)
	require.Equal(t, uint16(1), view.NSCount)
	require.Equal(t, uint16(1), view.ARCount)
	require.Len(t, view.QuestionOffsets, 1)
	require.Len(t, view.RROffsets, 3)
	require.Equal(t, HeaderSize, view.QuestionOffsets[0])
}

func TestStructuralDecoderIncrementalFeed(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	d := NewStructuralDecoder()
	var view *MessageView
	for n := 1; n <= len(buf); n++ {
		view, _, err = d.View(buf[:n])
		if err == nil {
			break
		}
		require.ErrorIs(t, err, ErrIncomplete)
	}
	require.NoError(t, err)
	require.Equal(t, len(buf), view.Size)
}

func TestRewriteAndReadID(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	require.NoError(t, RewriteID(buf, 0xBEEF))
	id, err := ReadID(buf)
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), id)

	frame := append([]byte{0, byte(len(buf))}, buf...)
	require.NoError(t, RewriteIDInFrame(frame, 0xCAFE))
	id, err = ReadIDFromFrame(frame)
	require.NoError(t, err)
	require.Equal(t, uint16(0xCAFE), id)
}

func TestTruncateDropsAdditionalFirst(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	// A limit that still fits everything except the additional
	// section's RR: Truncate stops once the size is strictly below the
	// limit, so the limit is one past the additional RR's offset.
	view, err := StructuralView(buf)
	require.NoError(t, err)
	limit := view.RROffsets[2] + 1 // offset of the additional RR, plus one

	out, err := Truncate(append([]byte(nil), buf...), limit)
	require.NoError(t, err)

	decoded, err := Decode(out)
	require.NoError(t, err)
	require.True(t, decoded.Header.TC)
	require.Len(t, decoded.Additional, 0)
	require.Len(t, decoded.Authority, 1)
	require.Len(t, decoded.Answers, 1)
	require.Len(t, decoded.Questions, 1)
}

func TestTruncateLimitTooSmall(t *testing.T) {
	msg := sampleMessage()
	buf, err := Encode(msg)
	require.NoError(t, err)

	_, err = Truncate(buf, HeaderSize-1)
	require.ErrorIs(t, err, ErrTruncateLimitTooSmall)
}

func TestDecodeRejectsForwardPointer(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[5] = 1 // QDCOUNT = 1
	// A question whose name is a pointer to an offset at or after its
	// own position, which must be rejected.
	buf = append(buf, 0xC0, 0x00) // pointer to offset 0 (the header) -- allowed since 0 < current pos
	// Make it point forward instead, to just past itself.
	forwardTarget := HeaderSize + 2
	buf[len(buf)-2] = 0xC0 | byte(forwardTarget>>8)
	buf[len(buf)-1] = byte(forwardTarget)
	buf = append(buf, 0, 0, 0, 0) // QTYPE/QCLASS

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsReservedLabelFlag(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[5] = 1
	buf = append(buf, 0x40) // reserved flag pattern
	buf = append(buf, 0, 0, 0, 0)

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeRejectsOversizedLabel(t *testing.T) {
	msg := &Message{
		Header:    Header{ID: 1},
		Questions: []Question{{Name: strings.Repeat("a", 256), Type: 1, Class: 1}},
	}
	_, err := Encode(msg)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2})
	require.ErrorIs(t, err, ErrMalformed)
}
