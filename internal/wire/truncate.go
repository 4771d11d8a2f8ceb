// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "encoding/binary"

// Truncate drops trailing resource records (and, if still too large,
// trailing questions) from a complete, encoded message until its size
// is strictly below sizeLimit octets, sets the TC bit, and rewrites
// the four section counts. It returns the truncated buffer, sharing
// msg's backing array. A message no longer than sizeLimit is returned
// unchanged.
//
// Records are dropped in priority order: additional first, then
// authority, then answer, and only questions as a last resort,
// mirroring the original encoder's removal order. The current size is
// compared against sizeLimit before each removal, so a message cut
// down to exactly sizeLimit octets loses one more element.
//
// Truncate fails with [ErrTruncateLimitTooSmall] if sizeLimit is not
// even large enough to hold the header.
func Truncate(msg []byte, sizeLimit int) ([]byte, error) {
	if sizeLimit < HeaderSize {
		return nil, ErrTruncateLimitTooSmall
	}
	if len(msg) <= sizeLimit {
		return msg, nil
	}

	view, err := StructuralView(msg)
	if err != nil {
		return nil, err
	}

	qdcount := int(view.QDCount)
	ancount := int(view.ANCount)
	nscount := int(view.NSCount)
	arcount := int(view.ARCount)

	newSize := view.Size

	popRR := func(count *int) {
		last := ancount + nscount + arcount - 1
		newSize = view.RROffsets[last]
		*count--
	}
	popQuestion := func() {
		newSize = view.QuestionOffsets[qdcount-1]
		qdcount--
	}

	for newSize >= sizeLimit {
		switch {
		case arcount > 0:
			popRR(&arcount)
		case nscount > 0:
			popRR(&nscount)
		case ancount > 0:
			popRR(&ancount)
		case qdcount > 0:
			popQuestion()
		default:
			newSize = HeaderSize
			goto done
		}
	}
done:

	out := msg[:newSize]
	binary.BigEndian.PutUint16(out[4:6], uint16(qdcount))
	binary.BigEndian.PutUint16(out[6:8], uint16(ancount))
	binary.BigEndian.PutUint16(out[8:10], uint16(nscount))
	binary.BigEndian.PutUint16(out[10:12], uint16(arcount))

	flags := binary.BigEndian.Uint16(out[2:4])
	flags |= 1 << flagTCShift
	binary.BigEndian.PutUint16(out[2:4], flags)

	return out, nil
}
