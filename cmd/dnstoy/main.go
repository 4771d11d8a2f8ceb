// SPDX-License-Identifier: GPL-3.0-or-later

// Command dnstoy forwards DNS queries received over UDP and TCP to a
// pool of DNS-over-TLS upstreams, picking among them by a latency
// estimate and probing idle upstreams opportunistically.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bassosimone/dnstoy/internal/config"
	"github.com/bassosimone/dnstoy/internal/dispatch"
	"github.com/bassosimone/dnstoy/internal/proxy"
	"github.com/bassosimone/dnstoy/internal/upstream"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dnstoy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "./dnstoy.conf", "path to the dnstoy configuration file")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	flag.Parse()

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolvers, records, err := buildResolvers(ctx, cfg, log)
	if err != nil {
		return err
	}

	worker := proxy.NewWorker(
		resolvers,
		dispatch.NewDispatcher(records),
		cfg.QueryTimeout,
		int(cfg.UDPPayloadSizeLimit),
		log.WithField("worker", "main"),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range resolvers {
		r := r
		g.Go(func() error {
			r.Run(gctx)
			return nil
		})
	}

	udpConn, tcpLn, err := listen(cfg)
	if err != nil {
		return err
	}

	g.Go(func() error {
		return proxy.ServeUDP(gctx, udpConn, worker, log.WithField("listener", "udp"))
	})
	g.Go(func() error {
		return proxy.ServeTCP(gctx, tcpLn, worker, log.WithField("listener", "tcp"))
	})

	log.WithFields(logrus.Fields{
		"address":   cfg.ListenAddress.String(),
		"port":      cfg.ListenPort,
		"upstreams": len(resolvers),
	}).Info("dnstoy: listening")

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// loadConfig loads the configuration file at path, falling back to
// built-in defaults when the file does not exist so that a first run
// with no configuration present still starts up successfully.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// buildResolvers resolves every configured upstream's dial addresses
// and constructs one [dispatch.Record] and [upstream.Resolver] per
// upstream, sharing a single TLS session cache across all of them for
// session resumption across reconnects. Each resolver dials only the
// first of its upstream's addresses; the others are not used as
// fallbacks.
func buildResolvers(ctx context.Context, cfg *config.Config, log *logrus.Logger) ([]*upstream.Resolver, []*dispatch.Record, error) {
	sessionCache := tls.NewLRUClientSessionCache(0)

	var resolvers []*upstream.Resolver
	var records []*dispatch.Record
	for _, spec := range cfg.RemoteServers {
		addresses, err := config.ResolveAddresses(ctx, spec)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving upstream %q: %w", spec.Hostname, err)
		}
		if len(addresses) == 0 {
			return nil, nil, fmt.Errorf("upstream %q resolved to no addresses", spec.Hostname)
		}

		serverName := spec.Hostname
		record := dispatch.NewRecord()
		resolver := upstream.NewResolver(upstream.Config{
			Address:      addresses[0],
			ServerName:   serverName,
			Dialer:       &net.Dialer{},
			SessionCache: sessionCache,
		}, record, log.WithFields(logrus.Fields{"upstream": addresses[0]}))

		resolvers = append(resolvers, resolver)
		records = append(records, record)
	}
	return resolvers, records, nil
}

// listen binds the UDP and TCP sockets the forwarder serves queries
// on, both on the same configured address and port.
func listen(cfg *config.Config) (net.PacketConn, net.Listener, error) {
	addr := net.JoinHostPort(cfg.ListenAddress.String(), strconv.Itoa(int(cfg.ListenPort)))

	udpConn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("binding udp %s: %w", addr, err)
	}

	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		udpConn.Close()
		return nil, nil, fmt.Errorf("binding tcp %s: %w", addr, err)
	}

	return udpConn, tcpLn, nil
}
