// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import "github.com/bassosimone/dnstoy/internal/wire"

// ReplyFailure synthesizes a minimal DNS response carrying rcode and
// no sections at all, for cases where no upstream ever produced a
// real answer (timeout, or every resolver reporting a transport
// failure for this query). It is never a silent drop: the client
// always receives a reply it can act on.
func ReplyFailure(clientID uint16, rcode uint8) []byte {
	msg := &wire.Message{
		Header: wire.Header{
			ID:    clientID,
			QR:    true,
			Rcode: rcode,
		},
	}
	buf, err := wire.Encode(msg)
	if err != nil {
		// Encode can only fail on oversized names/counts, none of which
		// this minimal message has.
		panic(err)
	}
	return buf
}
