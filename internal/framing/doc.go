// SPDX-License-Identifier: GPL-3.0-or-later

// Package framing turns a byte stream or a sequence of datagrams into
// a sequence of complete DNS messages.
//
// [StreamReader] accumulates TCP/TLS bytes (RFC 7766 length-prefixed
// framing) in a growable buffer, compacting in place rather than
// reallocating whenever the already-read prefix leaves enough room,
// and yields one framed message at a time — including delivering
// several messages already sitting in the same read() in a single
// pipelined batch (RFC 7766 §6.2.1.1).
//
// [DatagramReader] reads one UDP datagram per call into a fixed
// buffer; DNS datagrams are never split across reads.
package framing
