// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "errors"

// ErrMalformed indicates a buffer violates RFC 1035 framing beyond
// repair: a field runs past the end of the buffer, a compression
// pointer targets an offset that is not strictly earlier than the
// current one, a label uses a reserved flag bits pattern, or a label
// exceeds 255 octets.
//
// Callers decoding client or upstream traffic should discard the
// offending message and keep processing the rest of the stream or
// socket; ErrMalformed is never fatal to the connection it arrived on.
var ErrMalformed = errors.New("wire: malformed message")

// ErrIncomplete indicates the streaming structural view has not yet
// seen enough bytes to finish decoding the current message. Callers
// should keep reading and retry once more data has arrived.
var ErrIncomplete = errors.New("wire: incomplete message")

// ErrTruncateLimitTooSmall indicates Truncate was asked to produce a
// message no larger than a limit that does not even fit the header.
var ErrTruncateLimitTooSmall = errors.New("wire: truncate limit smaller than header")
