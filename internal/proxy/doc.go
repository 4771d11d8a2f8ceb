// SPDX-License-Identifier: GPL-3.0-or-later

// Package proxy is the client-facing half of the forwarder: it
// accepts UDP datagrams and framed TCP messages, hands each off to a
// [dispatch.Dispatcher] for upstream selection, and serializes the
// eventual answer (or a synthesized failure) back to the client.
//
// Internally every query — UDP or TCP — is tracked with the same
// 2-byte length-prefixed framing [internal/wire] already understands,
// so [query.Context.RawQuery] and [query.Context.RawAnswer] always
// carry a message the wire package's ID helpers can operate on
// directly; [Worker.HandleQuery] adds that prefix to every inbound
// query and [Worker.deliver] strips it from every reply, and the TCP
// writer frames each reply again as it writes it to the stream.
package proxy
