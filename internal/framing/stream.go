// SPDX-License-Identifier: GPL-3.0-or-later

package framing

import (
	"encoding/binary"
	"errors"
	"io"
)

// lengthPrefixSize is the size of the RFC 7766 2-octet length prefix
// that precedes every message on a DNS-over-TCP or DNS-over-TLS
// stream.
const lengthPrefixSize = 2

// defaultInitialCapacity is the size a [StreamReader]'s buffer starts
// at; it grows on demand for oversized messages and is never shrunk
// back, trading a little resident memory per connection for avoiding
// repeated reallocation on the common path.
const defaultInitialCapacity = 4096

// StreamReader accumulates bytes read from a framed DNS stream and
// yields complete messages one at a time. It is not safe for
// concurrent use; each connection owns one.
type StreamReader struct {
	buf         []byte
	offset      int // start of unconsumed data
	size        int // length of unconsumed data
	messageSize int // 0 until the length prefix of the current message is known
}

// NewStreamReader creates a [StreamReader] with a default initial
// buffer capacity.
func NewStreamReader() *StreamReader {
	return &StreamReader{buf: make([]byte, defaultInitialCapacity)}
}

// Next blocks reading from r until one complete framed message
// (length prefix included) is available, then returns it. The
// returned slice aliases the reader's internal buffer and is only
// valid until the next call to Next; callers that need to retain it
// must copy it.
//
// Next returns io.EOF (or a wrapped io.EOF) once r reaches end of
// stream with no partial message pending, and any other error reading
// from r verbatim.
func (r *StreamReader) Next(reader io.Reader) ([]byte, error) {
	for {
		if msg, ok := r.takeMessage(); ok {
			return msg, nil
		}
		if err := r.fill(reader); err != nil {
			return nil, err
		}
	}
}

// takeMessage extracts one complete message from the front of the
// buffered data, if one is fully present.
func (r *StreamReader) takeMessage() ([]byte, bool) {
	if r.messageSize == 0 {
		if r.size < lengthPrefixSize {
			return nil, false
		}
		length := binary.BigEndian.Uint16(r.buf[r.offset : r.offset+lengthPrefixSize])
		r.messageSize = lengthPrefixSize + int(length)
	}
	if r.size < r.messageSize {
		return nil, false
	}
	msg := r.buf[r.offset : r.offset+r.messageSize]
	r.offset += r.messageSize
	r.size -= r.messageSize
	r.messageSize = 0
	return msg, true
}

// fill ensures there is room for at least the bytes still needed to
// complete the current (or next, if unknown) message, compacting the
// buffer in place when the already-consumed prefix leaves enough
// room, and growing it only when compaction is not enough.
func (r *StreamReader) fill(reader io.Reader) error {
	needed := r.messageSize - r.size
	if needed <= 0 {
		needed = lengthPrefixSize
	}
	available := len(r.buf) - r.offset - r.size
	if available < needed {
		if r.offset+available >= needed {
			copy(r.buf, r.buf[r.offset:r.offset+r.size])
			r.offset = 0
			available = len(r.buf) - r.size
		} else {
			grown := make([]byte, len(r.buf)+(needed-available))
			copy(grown, r.buf[r.offset:r.offset+r.size])
			r.buf = grown
			r.offset = 0
			available = len(r.buf) - r.size
		}
	}

	n, err := reader.Read(r.buf[r.offset+r.size : r.offset+r.size+available])
	r.size += n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = errors.New("framing: short read with no error")
	}
	return err
}
