// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"context"
	"net"

	"github.com/bassosimone/dnstoy/internal/framing"
	"github.com/sirupsen/logrus"
)

// replyQueueCapacity bounds how many replies a slow TCP client can
// have buffered; once the queue is full, delivering another reply
// blocks the goroutine that completed the query (an upstream
// resolver's event loop or the query's expiration timer) until the
// writer drains the queue or the connection is torn down.
const replyQueueCapacity = 64

// ServeTCP accepts connections on ln until ctx is canceled, serving
// each with [serveTCPConn] in its own goroutine.
func ServeTCP(ctx context.Context, ln net.Listener, worker *Worker, log *logrus.Entry) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go serveTCPConn(ctx, conn, worker, log)
	}
}

// serveTCPConn reads pipelined, length-prefixed queries from one
// connection and writes replies back to it in a single dedicated
// writer goroutine, since unlike UDP a TCP stream cannot tolerate
// interleaved concurrent writes.
func serveTCPConn(ctx context.Context, conn net.Conn, worker *Worker, log *logrus.Entry) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	// The channel is deliberately never closed: a query dispatched to
	// an upstream can still resolve and try to send a reply after the
	// read loop below has given up on the connection, and sending on a
	// closed channel panics. connCtx cancellation is what actually
	// stops both the writer below and any late senders, and the
	// channel is left for the garbage collector once nothing
	// references it.
	replies := make(chan []byte, replyQueueCapacity)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case payload := <-replies:
				if _, err := conn.Write(frame(payload)); err != nil {
					log.WithError(err).Debug("proxy: tcp reply write failed")
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	reader := framing.NewStreamReader()
	for {
		framedQuery, err := reader.Next(conn)
		if err != nil {
			break
		}
		worker.HandleQuery(unframe(framedQuery), false, func(payload []byte) {
			select {
			case replies <- payload:
			case <-connCtx.Done():
			}
		})
	}

	cancel()
	<-writerDone
}
