// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire implements the RFC 1035 DNS message codec that backs the
// forwarding core: a full decoder, a streaming structural viewer, an
// encoder with name compression, an in-place truncator, and the
// transaction-ID rewrite used to multiplex queries on a single upstream
// connection.
//
// The codec is transparent: it never validates TYPE, CLASS, RCODE or
// OPCODE values, it only enforces the structural framing required to
// locate the transaction ID and the section boundaries (RFC 5625).
package wire
