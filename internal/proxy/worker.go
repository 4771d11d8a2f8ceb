// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"encoding/binary"
	"time"

	"github.com/bassosimone/dnstoy/internal/dispatch"
	"github.com/bassosimone/dnstoy/internal/query"
	"github.com/bassosimone/dnstoy/internal/upstream"
	"github.com/bassosimone/dnstoy/internal/wire"
	"github.com/sirupsen/logrus"
)

const lengthPrefixSize = 2

// frame wraps a raw DNS message with the same 2-byte big-endian
// length prefix used on the wire for TCP, so [internal/wire]'s ID
// helpers and [wire.Truncate] can operate uniformly regardless of
// which transport a query arrived on.
func frame(raw []byte) []byte {
	out := make([]byte, lengthPrefixSize+len(raw))
	binary.BigEndian.PutUint16(out, uint16(len(raw)))
	copy(out[lengthPrefixSize:], raw)
	return out
}

func unframe(f []byte) []byte {
	return f[lengthPrefixSize:]
}

// Worker owns one shard's upstream resolvers and dispatcher and
// answers queries handed to it by the UDP and TCP listeners that
// share it. A Worker is driven by whatever goroutines call
// [Worker.HandleQuery]; the resolvers and dispatcher it wraps are not
// safe for concurrent use from outside this package, so all the
// synchronization those require happens inside [upstream.Resolver]
// and via [query.Context]'s own atomic state.
type Worker struct {
	resolvers       []*upstream.Resolver
	dispatcher      *dispatch.Dispatcher
	pool            *query.Pool
	queryTimeout    time.Duration
	udpPayloadLimit int
	log             *logrus.Entry
}

// NewWorker creates a Worker dispatching across resolvers (in the
// same order as the records the dispatcher was built from).
func NewWorker(
	resolvers []*upstream.Resolver,
	dispatcher *dispatch.Dispatcher,
	queryTimeout time.Duration,
	udpPayloadLimit int,
	log *logrus.Entry,
) *Worker {
	return &Worker{
		resolvers:       resolvers,
		dispatcher:      dispatcher,
		pool:            query.NewPool(),
		queryTimeout:    queryTimeout,
		udpPayloadLimit: udpPayloadLimit,
		log:             log,
	}
}

// HandleQuery decodes and dispatches one raw (unframed) client
// message. reply is invoked exactly once, from whichever goroutine
// resolves or expires the query, with the final unframed answer to
// send back (see [Worker.deliver]); malformed queries that cannot even be read for a transaction
// ID are dropped silently, matching the wire codec's discard-don't-
// kill-the-connection contract.
func (w *Worker) HandleQuery(raw []byte, udp bool, reply func([]byte)) {
	id, err := wire.ReadID(raw)
	if err != nil {
		w.log.WithError(err).Debug("proxy: dropping unreadable query")
		return
	}

	qctx := w.pool.Get()
	qctx.ClientID = id
	qctx.RawQuery = frame(raw)
	qctx.SetOnDone(func(c *query.Context) {
		w.deliver(c, udp, reply)
	})
	qctx.ArmTimer(w.queryTimeout)

	primary, probe, hasProbe := w.dispatcher.Select()
	w.resolvers[primary].Resolve(qctx, qctx.RawQuery)
	if hasProbe {
		w.resolvers[probe].Resolve(qctx, qctx.RawQuery)
	}
}

// deliver runs once a query leaves StatusWaiting: it synthesizes a
// failure reply on expiry, strips the length prefix, truncates
// oversized UDP answers, hands the unframed message to reply, and
// returns the Context to the pool.
func (w *Worker) deliver(qctx *query.Context, udp bool, reply func([]byte)) {
	framed := qctx.RawAnswer
	if qctx.Status() == query.StatusExpired {
		framed = frame(ReplyFailure(qctx.ClientID, wire.RcodeServerFailure))
	}
	qctx.Accept()

	payload := unframe(framed)
	if udp && len(payload) > w.udpPayloadLimit {
		if truncated, err := wire.Truncate(append([]byte(nil), payload...), w.udpPayloadLimit); err == nil {
			payload = truncated
		} else {
			w.log.WithError(err).Warn("proxy: truncate failed, sending oversized reply")
		}
	}
	reply(payload)
	w.pool.Put(qctx)
}
