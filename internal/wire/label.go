// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "strings"

// Label flag bits occupy the top two bits of the length/flag octet
// (RFC 1035 §4.1.4).
const (
	labelFlagMask    = 0xC0
	labelFlagNormal  = 0x00
	labelFlagPointer = 0xC0
	// The two remaining patterns (0x40, 0x80) are reserved.
)

// decodeLabels walks a sequence of labels starting at offset start in
// buf, following at most one chain of compression pointers, and
// returns the joined dotted name (only when collect is true; the
// streaming structural view passes collect=false to avoid allocating)
// and the number of bytes the name occupies at its own offset in the
// message (i.e. not counting bytes that only exist at a pointer
// target).
//
// When the name's encoding runs past the end of buf, the returned
// error is ErrIncomplete if incomplete is true (the streaming viewer,
// which may simply not have read enough of the stream yet) or
// ErrMalformed otherwise (the full decoder, which expects buf to hold
// a complete message already).
func decodeLabels(buf []byte, start int, collect bool, incomplete bool) (name string, consumed int, err error) {
	pos := start
	jumped := false
	var sb strings.Builder

	needMore := func() (string, int, error) {
		if incomplete {
			return "", 0, ErrIncomplete
		}
		return "", 0, ErrMalformed
	}

	for {
		if pos > len(buf) {
			return "", 0, ErrMalformed
		}
		if pos == len(buf) {
			return needMore()
		}

		b := buf[pos]
		switch b & labelFlagMask {
		case labelFlagPointer:
			if pos+2 > len(buf) {
				return needMore()
			}
			target := (int(b&^labelFlagMask) << 8) | int(buf[pos+1])
			if !jumped {
				consumed += 2
			}
			if target >= pos {
				return "", 0, ErrMalformed
			}
			pos = target
			jumped = true

		case labelFlagNormal:
			length := int(b)
			labelSize := 1 + length
			if pos+labelSize > len(buf) {
				return needMore()
			}
			if !jumped {
				consumed += labelSize
			}
			if length == 0 {
				if collect {
					name = sb.String()
				}
				return name, consumed, nil
			}
			if collect {
				if sb.Len() > 0 {
					sb.WriteByte('.')
				}
				sb.Write(buf[pos+1 : pos+1+length])
			}
			pos += labelSize

		default:
			// RFC 1035 §4.1.4: 0x40 and 0x80 are reserved.
			return "", 0, ErrMalformed
		}
	}
}

// encodedLabels tracks, within a single encode call, which name
// suffixes have already been written so later names can reuse them as
// compression pointer targets (RFC 1035 §4.1.4).
type encodedLabels map[string]int

// encodeName appends name to buf starting at the caller-tracked
// offset, using el to compress any suffix already written earlier in
// this message. It returns the updated buffer and offset.
func encodeName(buf []byte, offset int, name string, el encodedLabels) ([]byte, int, error) {
	for name != "" {
		if target, ok := el[name]; ok {
			buf = append(buf, byte(labelFlagPointer|(target>>8)), byte(target))
			offset += 2
			return buf, offset, nil
		}

		label := name
		rest := ""
		if i := strings.IndexByte(name, '.'); i >= 0 {
			label = name[:i]
			rest = name[i+1:]
		}
		if len(label) == 0 {
			return nil, 0, ErrMalformed
		}
		if len(label) > 255 {
			return nil, 0, ErrMalformed
		}

		if len(label) > 1 && offset < 0x4000 {
			el[name] = offset
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
		offset += 1 + len(label)

		name = rest
	}
	buf = append(buf, 0)
	offset++
	return buf, offset, nil
}
