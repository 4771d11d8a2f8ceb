// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnstoy forwards DNS queries received over UDP and TCP to one or
// more upstream recursive resolvers over DNS-over-TLS (RFC 7858) and
// returns the upstream answer to the original client.
//
// dnstoy is deliberately transparent per RFC 5625: it does not validate
// or interpret record data, only the structural framing required to
// locate the transaction ID and the section boundaries of a message.
//
// The implementation is organized as:
//
//  1. [github.com/bassosimone/dnstoy/internal/wire]: RFC 1035 message
//     codec (full decode, streaming structural view, encode, in-place
//     truncation, transaction ID rewrite).
//
//  2. [github.com/bassosimone/dnstoy/internal/framing]: turns a TCP/TLS
//     byte stream into complete length-prefixed messages, and a UDP
//     socket into a sequence of datagrams.
//
//  3. [github.com/bassosimone/dnstoy/internal/query]: per-request state
//     (QueryContext), its lifecycle, and a per-worker object pool.
//
//  4. [github.com/bassosimone/dnstoy/internal/upstream]: a pipelined
//     DNS-over-TLS connection to a single upstream, with reconnection,
//     backoff, and session resumption.
//
//  5. [github.com/bassosimone/dnstoy/internal/dispatch]: ranks upstreams
//     by predicted latency and dispatches each query to the fastest one,
//     opportunistically probing idle upstreams.
//
//  6. [github.com/bassosimone/dnstoy/internal/proxy]: owns client-facing
//     UDP and TCP sockets, decodes inbound queries, and serializes
//     replies back in completion order.
//
//  7. [github.com/bassosimone/dnstoy/internal/config]: parses the
//     dnstoy.conf key=value file and the remote-servers grammar.
//
// The command-line entry point lives in
// [github.com/bassosimone/dnstoy/cmd/dnstoy].
package dnstoy
