// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "encoding/binary"

// phase identifies the coarse stage of the streaming decode: the
// header, the question section, or the combined
// answer/authority/additional RR run (which spec.md's [MessageView]
// exposes as a single ordered offset list, so the decoder does not
// need to distinguish between them while walking).
type phase int

const (
	phaseHeader phase = iota
	phaseQuestion
	phaseRR
)

// fieldKind identifies what the streaming decoder is currently
// waiting for within the element (question or RR) it is walking.
type fieldKind int

const (
	fieldName fieldKind = iota
	fieldAfterName
	fieldRData
)

// StructuralDecoder incrementally computes a [MessageView] over a byte
// stream delivered in arbitrary chunks, without requiring the full
// message to be present in one contiguous buffer and without
// materializing names or RDATA.
//
// It advances a small state machine: HEADER, then per-question
// NAME/AFTER_NAME, then per-RR NAME/AFTER_NAME/RDATA across the
// answer, authority, and additional sections in that order. Construct
// with [NewStructuralDecoder] and drive with [*StructuralDecoder.View].
type StructuralDecoder struct {
	phase         phase
	field         fieldKind
	waitingSize   int
	waitingUseful bool
	offset        int
	elementIndex  int
	elementCount  int
	view          *MessageView
}

// StructuralView computes a [MessageView] over a single complete
// in-memory buffer. It is a convenience wrapper around
// [StructuralDecoder] for callers that already hold the whole message,
// such as tests and the truncator.
func StructuralView(buf []byte) (*MessageView, error) {
	d := NewStructuralDecoder()
	view, _, err := d.View(buf)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// NewStructuralDecoder creates a [*StructuralDecoder] ready to decode
// one message from offset 0. Call [*StructuralDecoder.Reset] to reuse
// it for the next message on the same stream.
func NewStructuralDecoder() *StructuralDecoder {
	d := &StructuralDecoder{}
	d.Reset()
	return d
}

// Reset prepares the decoder to decode a new message from the
// beginning, discarding any partial state.
func (d *StructuralDecoder) Reset() {
	d.phase = phaseHeader
	d.field = fieldName
	d.waitingSize = HeaderSize
	d.waitingUseful = true
	d.offset = 0
	d.elementIndex = 0
	d.elementCount = 0
	d.view = nil
}

// View advances the state machine over data, the bytes of the current
// message seen so far starting at the decoder's own offset 0 (callers
// pass the growing/compacted window of a single message, not just the
// newly-arrived increment). It returns ErrIncomplete until exactly
// view.Size octets have been accounted for, at which point it returns
// a nil error and the completed [MessageView].
//
// walked reports how many leading octets of data the decoder has
// consumed so far across all calls; callers that slide/compact their
// buffer use it to know how much is safe to drop, but must otherwise
// keep resupplying the same logical stream position on each call.
func (d *StructuralDecoder) View(data []byte) (view *MessageView, walked int, err error) {
	if d.view == nil {
		d.view = &MessageView{}
	}
	view = d.view
	walked = d.offset

	for {
		avail := len(data) - walked
		if avail < d.waitingSize {
			if !d.waitingUseful {
				d.offset += avail
				d.waitingSize -= avail
				walked = len(data)
			}
			return view, walked, ErrIncomplete
		}

		switch d.phase {
		case phaseHeader:
			if err := d.decodeHeader(data); err != nil {
				return view, walked, err
			}
			d.offset += HeaderSize
			walked = d.offset
			if d.phase == phaseHeader {
				// no question and no RR at all
				view.Size = d.offset
				return view, walked, nil
			}
			d.field = fieldName
			d.waitingSize = 0
			continue

		case phaseQuestion, phaseRR:
			switch d.field {
			case fieldName:
				d.markElementStart()
				_, consumed, err := decodeLabels(data, walked, false, true)
				if err != nil {
					if err == ErrIncomplete {
						d.waitingSize = 1
						d.waitingUseful = false
						return view, walked, ErrIncomplete
					}
					return view, walked, err
				}
				d.offset += consumed
				walked = d.offset
				d.field = fieldAfterName
				if d.phase == phaseQuestion {
					d.waitingSize = 4 // QTYPE + QCLASS
					d.waitingUseful = false
				} else {
					d.waitingSize = 10 // TYPE+CLASS+TTL+RDLENGTH
					d.waitingUseful = true
				}
				continue

			case fieldAfterName:
				if d.phase == phaseQuestion {
					d.offset += d.waitingSize // rest of QTYPE + QCLASS
					walked = d.offset
					d.field = fieldName
					d.waitingSize = 0
					d.waitingUseful = true
					if d.advanceElement() {
						continue
					}
					view.Size = d.offset
					return view, walked, nil
				}
				rdlength := int(binary.BigEndian.Uint16(data[walked+8 : walked+10]))
				d.offset += 10
				walked = d.offset
				d.waitingSize = rdlength
				d.waitingUseful = false
				d.field = fieldRData
				continue

			case fieldRData:
				d.offset += d.waitingSize // rest of RDATA
				walked = d.offset
				d.field = fieldName
				d.waitingSize = 0
				d.waitingUseful = true
				if d.advanceElement() {
					continue
				}
				view.Size = d.offset
				return view, walked, nil
			}
		}
	}
}

// decodeHeader reads the fixed header and sets up the counters for
// whichever sections actually have entries, exactly mirroring the
// original decoder: it skips straight past empty sections.
func (d *StructuralDecoder) decodeHeader(data []byte) error {
	view := d.view
	view.ID = binary.BigEndian.Uint16(data[0:2])
	view.QDCount = binary.BigEndian.Uint16(data[4:6])
	view.ANCount = binary.BigEndian.Uint16(data[6:8])
	view.NSCount = binary.BigEndian.Uint16(data[8:10])
	view.ARCount = binary.BigEndian.Uint16(data[10:12])

	rrCount := int(view.ANCount) + int(view.NSCount) + int(view.ARCount)
	if rrCount > 0 {
		view.RROffsets = make([]int, rrCount)
		d.phase = phaseRR
		d.elementIndex = 0
		d.elementCount = rrCount
	}
	if view.QDCount > 0 {
		view.QuestionOffsets = make([]int, view.QDCount)
		d.phase = phaseQuestion
		d.elementIndex = 0
		d.elementCount = int(view.QDCount)
	}
	return nil
}

// markElementStart records the offset of the element the decoder is
// about to start, the first time it visits it.
func (d *StructuralDecoder) markElementStart() {
	switch d.phase {
	case phaseQuestion:
		d.view.QuestionOffsets[d.elementIndex] = d.offset
	default:
		d.view.RROffsets[d.elementIndex] = d.offset
	}
}

// advanceElement moves to the next element of the current phase, or
// (when finishing the question phase) falls through to the RR phase
// if any RRs exist, or reports there is nothing left to walk.
func (d *StructuralDecoder) advanceElement() bool {
	d.elementIndex++
	if d.elementIndex < d.elementCount {
		return true
	}
	if d.phase == phaseQuestion && len(d.view.RROffsets) > 0 {
		d.phase = phaseRR
		d.elementIndex = 0
		d.elementCount = len(d.view.RROffsets)
		return true
	}
	return false
}
