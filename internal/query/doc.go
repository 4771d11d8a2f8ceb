// SPDX-License-Identifier: GPL-3.0-or-later

// Package query tracks one client request from the moment the proxy
// accepts it to the moment an answer (or a synthesized failure) is
// queued back to the client.
//
// A [Context] moves through a small, monotonic state machine: it
// starts WAITING, and is resolved exactly once — either by an upstream
// answer arriving (ANSWER_WRITTEN, later ANSWER_ACCEPTED once queued
// for delivery) or by its own expiration timer firing first (EXPIRED).
// Both the resolver callback and the expiration timer race to make
// that one transition; [Context.TryResolve] and [Context.TryExpire]
// use a compare-and-swap so whichever happens first wins and the
// other is a silent no-op.
package query
