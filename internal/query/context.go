// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"sync/atomic"
	"time"
)

// Status is the state of a [Context]'s lifecycle.
type Status int32

const (
	// StatusWaiting is the initial state: the query has been sent
	// upstream (or is about to be) and no outcome has been recorded
	// yet.
	StatusWaiting Status = iota

	// StatusAnswerWritten means an upstream answer (or a locally
	// synthesized failure) has been recorded and is ready to be
	// queued for delivery to the client.
	StatusAnswerWritten

	// StatusAnswerAccepted means the answer has been handed off to
	// the client-facing write path.
	StatusAnswerAccepted

	// StatusExpired means the query's timeout fired before any answer
	// arrived; a failure reply is synthesized in its place.
	StatusExpired
)

// Context carries one client request end to end: the raw framed query
// as received, where to send the eventual reply, and the answer once
// one is available.
//
// A Context is reused across requests via [Pool]; [Context.reset]
// clears every field.
type Context struct {
	// ClientID is the transaction ID the client originally used. Each
	// upstream [Resolver] a query is dispatched to (the primary, and
	// possibly an idle probe) remaps this to its own connection-local
	// ID; ClientID is what the final answer is rewritten back to
	// before it is queued for delivery.
	ClientID uint16

	// RawQuery is the complete framed query (2-byte length prefix +
	// message) as received from the client, with the client's own ID
	// preserved so the reply can restore it.
	RawQuery []byte

	// RawAnswer is the complete framed answer once one is available,
	// with the client's original ID restored. It is not truncated;
	// the proxy truncates a copy for UDP replies.
	RawAnswer []byte

	status atomic.Int32
	timer  *time.Timer
	onDone func(*Context)
}

// reset clears a Context for reuse, called by [Pool.Put] before
// returning it to the pool and by [Pool.Get] on a newly allocated one.
func (c *Context) reset() {
	c.ClientID = 0
	c.RawQuery = nil
	c.RawAnswer = nil
	c.status.Store(int32(StatusWaiting))
	c.timer = nil
	c.onDone = nil
}

// Status returns the query's current state.
func (c *Context) Status() Status {
	return Status(c.status.Load())
}

// SetOnDone registers the callback invoked exactly once, by whichever
// of [Context.TryResolve] or the expiration timer wins the race to
// leave StatusWaiting. It must be called before the query is
// dispatched anywhere.
func (c *Context) SetOnDone(f func(*Context)) {
	c.onDone = f
}

// ArmTimer starts the query's expiration timer. If it fires before
// the query is resolved, the Context transitions to StatusExpired and
// the OnDone callback runs. ArmTimer must be called at most once per
// Context lifetime (i.e. after [Context.reset], not after a previous
// ArmTimer on the same use).
func (c *Context) ArmTimer(d time.Duration) {
	c.timer = time.AfterFunc(d, func() {
		if c.TryExpire() && c.onDone != nil {
			c.onDone(c)
		}
	})
}

// TryResolve attempts the WAITING -> ANSWER_WRITTEN transition,
// recording rawAnswer and invoking the OnDone callback if it wins the
// race against expiration. It returns true if this call made the
// transition.
func (c *Context) TryResolve(rawAnswer []byte) bool {
	if !c.status.CompareAndSwap(int32(StatusWaiting), int32(StatusAnswerWritten)) {
		return false
	}
	c.RawAnswer = rawAnswer
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.onDone != nil {
		c.onDone(c)
	}
	return true
}

// TryExpire attempts the WAITING -> EXPIRED transition. It returns
// true if this call made the transition. Unlike [Context.TryResolve],
// it does not itself invoke OnDone: [Context.ArmTimer]'s own callback
// already does, and external callers that win this race (none do
// today) would need to invoke it themselves.
func (c *Context) TryExpire() bool {
	return c.status.CompareAndSwap(int32(StatusWaiting), int32(StatusExpired))
}

// Accept makes the ANSWER_WRITTEN (or EXPIRED) -> ANSWER_ACCEPTED
// transition, used once the reply is handed to the delivery path. It
// is not contended (only the single OnDone callback calls it) and
// always succeeds.
func (c *Context) Accept() {
	c.status.Store(int32(StatusAnswerAccepted))
}
