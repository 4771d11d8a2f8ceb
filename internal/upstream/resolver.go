// SPDX-License-Identifier: GPL-3.0-or-later

package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/bassosimone/dnstoy/internal/dispatch"
	"github.com/bassosimone/dnstoy/internal/framing"
	"github.com/bassosimone/dnstoy/internal/query"
	"github.com/bassosimone/dnstoy/internal/wire"
	"github.com/sirupsen/logrus"
)

// Backoff bounds for reconnection, per spec: starts at 500ms, doubles
// on each consecutive failure, caps at 5 minutes.
const (
	firstRetryInterval = 500 * time.Millisecond
	maxRetryInterval   = 5 * time.Minute
)

// idleTimeout closes a connection that has carried no traffic for
// this long, freeing the upstream's resources; the next query simply
// reconnects. If queries are still outstanding when it fires, a fresh
// connection is dialed right away and they are re-sent on it.
const idleTimeout = 30 * time.Second

// latePenaltyScale/latePenaltyX64 apply a ×1.5 penalty, in the same
// fixed-point style as dispatch.Record's slope arithmetic, to the
// latency recorded for a query that answered after its Context had
// already transitioned to StatusExpired: the upstream still gets
// credit for eventually answering, but ranks worse than one that
// would have answered within the deadline.
const (
	latePenaltyScale = 64
	latePenaltyX64   = 96 // 1.5 * latePenaltyScale
)

// dispatchQueueCapacity bounds how many queries can be queued for
// this upstream (across all callers) before [Resolver.Resolve]
// applies backpressure to its caller.
const dispatchQueueCapacity = 256

// Config describes one upstream DNS-over-TLS resolver.
type Config struct {
	// Address is the "host:port" to dial.
	Address string

	// ServerName is the name to verify the upstream's certificate
	// against. Go's crypto/tls (via crypto/x509) already rejects
	// partial-wildcard matches per RFC 6125, so no extra verification
	// logic is needed beyond setting this field.
	ServerName string

	// Dialer creates the underlying TCP connection before the TLS
	// handshake; tests substitute a fake.
	Dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}

	// SessionCache enables TLS session resumption across
	// reconnections to the same upstream.
	SessionCache tls.ClientSessionCache
}

// dispatchRequest is one query handed to [Resolver.Resolve], carried
// across the channel boundary into the Resolver's own goroutine
// before any of its state is touched.
type dispatchRequest struct {
	qctx *query.Context
	raw  []byte
}

// connResult is delivered by a background connect attempt back to the
// Resolver's event loop.
type connResult struct {
	conn net.Conn
	err  error
}

// Resolver maintains one pipelined DNS-over-TLS connection to a
// single upstream. All of its state — the ID remap table, the write
// queue, the live connection — is owned exclusively by the single
// goroutine running [Resolver.Run]; every other method only ever
// hands data to that goroutine over a channel, so a Resolver is safe
// to call [Resolver.Resolve] on concurrently from many caller
// goroutines despite having no internal locks.
type Resolver struct {
	cfg    Config
	log    *logrus.Entry
	record *dispatch.Record

	dispatchCh chan dispatchRequest
}

// NewResolver creates a Resolver for one upstream. record is the
// performance record the dispatcher ranks this upstream by; the
// Resolver updates it as queries complete. Call [Resolver.Run] in its
// own goroutine to actually start connecting and serving queries.
func NewResolver(cfg Config, record *dispatch.Record, log *logrus.Entry) *Resolver {
	return &Resolver{
		cfg:        cfg,
		log:        log,
		record:     record,
		dispatchCh: make(chan dispatchRequest, dispatchQueueCapacity),
	}
}

// Resolve queues qctx's query for dispatch to this upstream. Safe to
// call from any goroutine. rawQuery is the client's original framed
// query (2-byte length prefix, client's own transaction ID); the
// Resolver copies it before remapping the ID, so callers may reuse or
// mutate their own copy freely once this returns.
func (r *Resolver) Resolve(qctx *query.Context, rawQuery []byte) {
	r.dispatchCh <- dispatchRequest{qctx: qctx, raw: append([]byte(nil), rawQuery...)}
}

// Run is the Resolver's single event loop: it owns the connection
// lifecycle (connect with backoff, pipeline writes and reads, detect
// idle/error and reconnect) and is the only place that ever touches
// the ID table, write queue, or live connection. It returns when ctx
// is canceled.
func (r *Resolver) Run(ctx context.Context) {
	ids := newIDTable()
	dispatched := make(map[uint16]time.Time)
	var outbox [][]byte

	var conn net.Conn
	var connResultCh chan connResult
	var incoming chan frameOrError
	var idle *time.Timer
	retry := firstRetryInterval
	var retryTimer *time.Timer

	startConnect := func() {
		ch := make(chan connResult, 1)
		connResultCh = ch
		go func() {
			c, err := r.connect(ctx)
			ch <- connResult{conn: c, err: err}
		}()
	}

	var enqueue func(req dispatchRequest)

	// requeueOnReset tears down the current connection (if any),
	// discards the unwritten outbox, the local ID mappings and the
	// timing records, and enqueues every still-waiting query again from
	// its pristine, client-ID-bearing RawQuery under a fresh local ID.
	requeueOnReset := func() {
		if conn != nil {
			conn.Close()
			conn = nil
		}
		if idle != nil {
			idle.Stop()
			idle = nil
		}
		incoming = nil
		outbox = nil
		dispatched = make(map[uint16]time.Time)
		for _, qctx := range ids.drainAll() {
			r.record.CancelLoad()
			if qctx.Status() == query.StatusWaiting {
				enqueue(dispatchRequest{qctx: qctx, raw: append([]byte(nil), qctx.RawQuery...)})
			}
		}
	}

	enqueue = func(req dispatchRequest) {
		r.record.IncreaseLoad()
		localID := ids.allocate(req.qctx)
		if err := wire.RewriteIDInFrame(req.raw, localID); err != nil {
			r.log.WithError(err).Warn("upstream: failed to rewrite outgoing id")
			ids.take(localID)
			r.record.CancelLoad()
			return
		}
		dispatched[localID] = time.Now()
		outbox = append(outbox, req.raw)
	}

	flushOutbox := func() bool {
		for len(outbox) > 0 {
			next := outbox[0]
			_ = conn.SetWriteDeadline(time.Now().Add(idleTimeout))
			if _, err := conn.Write(next); err != nil {
				r.log.WithError(err).Warn("upstream: write failed")
				return false
			}
			outbox = outbox[1:]
			if idle != nil {
				idle.Reset(idleTimeout)
			}
		}
		return true
	}

	handleFrame := func(frame []byte) {
		localID, err := wire.ReadIDFromFrame(frame)
		if err != nil {
			r.log.WithError(err).Warn("upstream: malformed response frame")
			return
		}
		qctx, ok := ids.take(localID)
		if !ok {
			r.log.WithField("id", localID).Debug("upstream: response for unknown or expired query")
			return
		}
		expired := qctx.Status() == query.StatusExpired
		if sentAt, ok := dispatched[localID]; ok {
			delete(dispatched, localID)
			cost := time.Since(sentAt).Milliseconds()
			if expired {
				// A late answer for a query that already timed out still
				// tells us something about this upstream, but it drove the
				// query past its deadline: penalize it so the dispatcher
				// ranks this upstream lower than one that would have
				// answered in time.
				cost = (cost * latePenaltyX64) / latePenaltyScale
			}
			r.record.RecordCompletion(cost)
		} else {
			r.record.CancelLoad()
		}
		if qctx.Status() != query.StatusWaiting {
			return
		}
		if err := wire.RewriteIDInFrame(frame, qctx.ClientID); err != nil {
			r.log.WithError(err).Warn("upstream: failed to restore client id")
			return
		}
		qctx.TryResolve(frame)
	}

	startConnect()
	for {
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
			return

		case req := <-r.dispatchCh:
			enqueue(req)
			if conn == nil && connResultCh == nil && retryTimer == nil {
				startConnect()
			}
			if conn != nil && !flushOutbox() {
				requeueOnReset()
				retry = firstRetryInterval
				startConnect()
			}

		case res := <-connResultCh:
			connResultCh = nil
			if res.err != nil {
				r.log.WithError(res.err).Warn("upstream: connect failed")
				retryTimer = time.NewTimer(retry)
				retry = nextRetry(retry)
				continue
			}
			retry = firstRetryInterval
			conn = res.conn
			incoming = make(chan frameOrError, 16)
			go readLoop(conn, incoming)
			idle = time.NewTimer(idleTimeout)
			if !flushOutbox() {
				requeueOnReset()
				startConnect()
			}

		case <-retryTimerC(retryTimer):
			retryTimer = nil
			startConnect()

		case ev, ok := <-incoming:
			if !ok {
				continue
			}
			if ev.err != nil {
				r.log.WithError(ev.err).Warn("upstream: read failed")
				requeueOnReset()
				startConnect()
				continue
			}
			if idle != nil {
				idle.Reset(idleTimeout)
			}
			handleFrame(ev.frame)

		case <-idleTimerC(idle):
			r.log.Debug("upstream: idle timeout, closing connection")
			requeueOnReset()
			if len(outbox) > 0 {
				startConnect()
			}
		}
	}
}

// retryTimerC and idleTimerC let the select above reference a *possibly
// nil* timer's channel without special-casing nil in every branch: a
// nil timer contributes a nil channel, which blocks forever and so is
// simply never selected.
func retryTimerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func idleTimerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func nextRetry(d time.Duration) time.Duration {
	d *= 2
	if d > maxRetryInterval {
		return maxRetryInterval
	}
	return d
}

// connect dials and TLS-handshakes a fresh connection.
func (r *Resolver) connect(ctx context.Context) (net.Conn, error) {
	raw, err := r.cfg.Dialer.DialContext(ctx, "tcp", r.cfg.Address)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(raw, &tls.Config{
		ServerName:         r.cfg.ServerName,
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: r.cfg.SessionCache,
	})
	if deadline, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return tlsConn, nil
}

type frameOrError struct {
	frame []byte
	err   error
}

// readLoop feeds frames (or the terminal error) from conn into out;
// it exits on any read error, including the connection being closed
// by the owning goroutine.
func readLoop(conn net.Conn, out chan<- frameOrError) {
	sr := framing.NewStreamReader()
	for {
		frame, err := sr.Next(conn)
		if err != nil {
			out <- frameOrError{err: err}
			return
		}
		out <- frameOrError{frame: append([]byte(nil), frame...)}
	}
}
