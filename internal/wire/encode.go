// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"math"
)

// Encode serializes msg into a new buffer. Name compression is applied
// across the whole message: any name suffix whose first label is
// longer than 1 octet, already written earlier in the message at an
// offset a 14-bit pointer can reach (below 0x4000), is referenced with
// a pointer instead of being repeated, exactly as RFC 1035 §4.1.4
// permits.
//
// Encode fails with ErrMalformed if any section count would overflow
// 16 bits, or if label.go rejects a name (empty intermediate label, or
// a label longer than 255 octets — intentionally not the RFC 1035
// 63-octet limit, see [label.go]'s encodeName).
func Encode(msg *Message) ([]byte, error) {
	if err := checkCounts(msg); err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize, HeaderSize+64)
	binary.BigEndian.PutUint16(buf[0:2], msg.Header.ID)
	binary.BigEndian.PutUint16(buf[2:4], msg.Header.flags())
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(msg.Questions)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(msg.Answers)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(msg.Authority)))
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(msg.Additional)))

	offset := HeaderSize
	el := make(encodedLabels)
	var err error

	for _, q := range msg.Questions {
		buf, offset, err = encodeName(buf, offset, q.Name, el)
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint16(buf, q.Type)
		buf = binary.BigEndian.AppendUint16(buf, q.Class)
		offset += 4
	}

	for _, section := range [][]ResourceRecord{msg.Answers, msg.Authority, msg.Additional} {
		for _, rr := range section {
			buf, offset, err = encodeName(buf, offset, rr.Name, el)
			if err != nil {
				return nil, err
			}
			buf = binary.BigEndian.AppendUint16(buf, rr.Type)
			buf = binary.BigEndian.AppendUint16(buf, rr.Class)
			buf = binary.BigEndian.AppendUint32(buf, rr.TTL)
			if len(rr.RDATA) > math.MaxUint16 {
				return nil, ErrMalformed
			}
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(rr.RDATA)))
			buf = append(buf, rr.RDATA...)
			offset += 10 + len(rr.RDATA)
		}
	}

	return buf, nil
}

// checkCounts verifies every section count fits the wire's 16-bit
// fields before any bytes are written.
func checkCounts(msg *Message) error {
	for _, n := range []int{len(msg.Questions), len(msg.Answers), len(msg.Authority), len(msg.Additional)} {
		if n > math.MaxUint16 {
			return ErrMalformed
		}
	}
	return nil
}
