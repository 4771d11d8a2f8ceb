// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"context"
	"net"

	"github.com/bassosimone/dnstoy/internal/framing"
	"github.com/sirupsen/logrus"
)

// ServeUDP reads datagrams from conn until ctx is canceled or a fatal
// read error occurs, dispatching each to worker. Unlike TCP, no
// per-connection write serialization is needed: [net.PacketConn]'s
// WriteTo is safe for concurrent use and a UDP datagram is written
// atomically, so the reply callback can write directly from whichever
// goroutine produces the answer.
func ServeUDP(ctx context.Context, conn net.PacketConn, worker *Worker, log *logrus.Entry) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reader := framing.NewDatagramReader()
	for {
		data, addr, err := reader.Next(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		query := append([]byte(nil), data...)
		worker.HandleQuery(query, true, func(payload []byte) {
			if _, err := conn.WriteTo(payload, addr); err != nil {
				log.WithError(err).Debug("proxy: udp reply write failed")
			}
		})
	}
}
