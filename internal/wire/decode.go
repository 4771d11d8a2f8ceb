// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "encoding/binary"

// Decode fully parses a complete message buffer into a [Message].
//
// Decode is transparent: TYPE, CLASS, RCODE and OPCODE values are
// passed through unchecked. Any field that would run past the end of
// buf yields ErrMalformed, since the caller is asserting buf already
// holds a complete message.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, ErrMalformed
	}

	msg := &Message{}
	flags := binary.BigEndian.Uint16(buf[2:4])
	msg.Header.ID = binary.BigEndian.Uint16(buf[0:2])
	msg.Header.setFlags(flags)
	qdcount := binary.BigEndian.Uint16(buf[4:6])
	ancount := binary.BigEndian.Uint16(buf[6:8])
	nscount := binary.BigEndian.Uint16(buf[8:10])
	arcount := binary.BigEndian.Uint16(buf[10:12])

	offset := HeaderSize

	msg.Questions = make([]Question, qdcount)
	for i := range msg.Questions {
		q, next, err := decodeQuestion(buf, offset)
		if err != nil {
			return nil, err
		}
		msg.Questions[i] = q
		offset = next
	}

	msg.Answers = make([]ResourceRecord, ancount)
	for i := range msg.Answers {
		rr, next, err := decodeResourceRecord(buf, offset)
		if err != nil {
			return nil, err
		}
		msg.Answers[i] = rr
		offset = next
	}

	msg.Authority = make([]ResourceRecord, nscount)
	for i := range msg.Authority {
		rr, next, err := decodeResourceRecord(buf, offset)
		if err != nil {
			return nil, err
		}
		msg.Authority[i] = rr
		offset = next
	}

	msg.Additional = make([]ResourceRecord, arcount)
	for i := range msg.Additional {
		rr, next, err := decodeResourceRecord(buf, offset)
		if err != nil {
			return nil, err
		}
		msg.Additional[i] = rr
		offset = next
	}

	return msg, nil
}

// decodeQuestion decodes one question starting at offset and returns
// the offset just past it.
func decodeQuestion(buf []byte, offset int) (Question, int, error) {
	name, nameLen, err := decodeLabels(buf, offset, true, false)
	if err != nil {
		return Question{}, 0, ErrMalformed
	}
	offset += nameLen

	const fixedSize = 4 // QTYPE + QCLASS
	if offset+fixedSize > len(buf) {
		return Question{}, 0, ErrMalformed
	}
	q := Question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(buf[offset : offset+2]),
		Class: binary.BigEndian.Uint16(buf[offset+2 : offset+4]),
	}
	return q, offset + fixedSize, nil
}

// decodeResourceRecord decodes one resource record starting at offset
// and returns the offset just past it.
func decodeResourceRecord(buf []byte, offset int) (ResourceRecord, int, error) {
	name, nameLen, err := decodeLabels(buf, offset, true, false)
	if err != nil {
		return ResourceRecord{}, 0, ErrMalformed
	}
	offset += nameLen

	const fixedSize = 10 // TYPE + CLASS + TTL + RDLENGTH
	if offset+fixedSize > len(buf) {
		return ResourceRecord{}, 0, ErrMalformed
	}
	rr := ResourceRecord{
		Name:  name,
		Type:  binary.BigEndian.Uint16(buf[offset : offset+2]),
		Class: binary.BigEndian.Uint16(buf[offset+2 : offset+4]),
		TTL:   binary.BigEndian.Uint32(buf[offset+4 : offset+8]),
	}
	rdlength := int(binary.BigEndian.Uint16(buf[offset+8 : offset+10]))
	offset += fixedSize

	if offset+rdlength > len(buf) {
		return ResourceRecord{}, 0, ErrMalformed
	}
	rr.RDATA = append([]byte(nil), buf[offset:offset+rdlength]...)
	offset += rdlength

	return rr, offset, nil
}
