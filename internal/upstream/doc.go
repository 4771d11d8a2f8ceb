// SPDX-License-Identifier: GPL-3.0-or-later

// Package upstream maintains one long-lived, pipelined DNS-over-TLS
// connection to a single upstream resolver (RFC 7858), remapping each
// forwarded query's transaction ID to a locally unique one so replies
// can be matched back to the originating [query.Context] regardless of
// what ID the client used.
//
// A [Resolver] owns its connection, its ID remap table, and its write
// queue; all of that state is touched only by the goroutine running
// [Resolver.Run], and [Resolver.Resolve] may be called from any
// goroutine. On any I/O error it
// discards the connection, re-dispatches every still-live query, and
// reconnects with exponential backoff.
package upstream
