// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "encoding/binary"

// idOffsetInMessage is the byte offset of the transaction ID within a
// raw DNS message (the first field of the header).
const idOffsetInMessage = 0

// ReadID reads the transaction ID directly out of a complete DNS
// message buffer without decoding anything else.
func ReadID(msg []byte) (uint16, error) {
	if len(msg) < HeaderSize {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint16(msg[idOffsetInMessage : idOffsetInMessage+2]), nil
}

// RewriteID overwrites the transaction ID of a complete DNS message
// buffer in place, without decoding or re-encoding the rest of it.
// Upstream resolvers use this to remap a client's ID to a locally
// unique one and back, without touching compressed names that may
// point at the header.
func RewriteID(msg []byte, id uint16) error {
	if len(msg) < HeaderSize {
		return ErrMalformed
	}
	binary.BigEndian.PutUint16(msg[idOffsetInMessage:idOffsetInMessage+2], id)
	return nil
}

// ReadIDFromFrame reads the transaction ID out of a TCP-framed message
// (a 2-octet big-endian length prefix followed by the message), again
// without decoding anything else.
func ReadIDFromFrame(frame []byte) (uint16, error) {
	const lengthPrefixSize = 2
	if len(frame) < lengthPrefixSize+HeaderSize {
		return 0, ErrMalformed
	}
	return ReadID(frame[lengthPrefixSize:])
}

// RewriteIDInFrame overwrites the transaction ID of a TCP-framed
// message in place.
func RewriteIDInFrame(frame []byte, id uint16) error {
	const lengthPrefixSize = 2
	if len(frame) < lengthPrefixSize+HeaderSize {
		return ErrMalformed
	}
	return RewriteID(frame[lengthPrefixSize:], id)
}
