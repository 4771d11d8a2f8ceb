// SPDX-License-Identifier: GPL-3.0-or-later

package upstream

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/dnstoy/internal/dispatch"
	"github.com/bassosimone/dnstoy/internal/framing"
	"github.com/bassosimone/dnstoy/internal/query"
	"github.com/bassosimone/dnstoy/internal/wire"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// selfSignedCert builds a throwaway leaf certificate for "dnstoy.test",
// standing in for the teacher's dropped pkitest fixtures as a one-off
// test helper.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "dnstoy.test"},
		DNSNames:     []string{"dnstoy.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// echoUpstream behaves like a trivial DNS-over-TLS server: it reads
// framed queries and answers each after delay (zero for immediately)
// with a minimal, well-formed response carrying the same transaction
// ID.
func echoUpstream(conn net.Conn, delay time.Duration) {
	sr := framing.NewStreamReader()
	for {
		frame, err := sr.Next(conn)
		if err != nil {
			return
		}
		id, err := wire.ReadIDFromFrame(frame)
		if err != nil {
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		msg, err := wire.Encode(&wire.Message{Header: wire.Header{ID: id, QR: true}})
		if err != nil {
			return
		}
		out := make([]byte, 2+len(msg))
		binary.BigEndian.PutUint16(out, uint16(len(msg)))
		copy(out[2:], msg)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// pipeDialer hands back one end of an in-memory net.Pipe per dial,
// having already started a TLS echo server on the other end; it
// substitutes for a real network in tests, the same role the
// teacher's FuncDialer plays for its own dialer tests. A nonzero delay
// holds every response back, standing in for a slow upstream.
type pipeDialer struct {
	cert  tls.Certificate
	delay time.Duration
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	clientSide, serverSide := net.Pipe()
	go func() {
		srv := tls.Server(serverSide, &tls.Config{Certificates: []tls.Certificate{d.cert}})
		defer srv.Close()
		if err := srv.Handshake(); err != nil {
			return
		}
		echoUpstream(srv, d.delay)
	}()
	return clientSide, nil
}

func framedQuery(id uint16) []byte {
	msg, err := wire.Encode(&wire.Message{Header: wire.Header{ID: id, RD: true}})
	if err != nil {
		panic(err)
	}
	out := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(out, uint16(len(msg)))
	copy(out[2:], msg)
	return out
}

func newTestResolver(t *testing.T) (*Resolver, *dispatch.Record) {
	cert := selfSignedCert(t)
	record := dispatch.NewRecord()
	log := logrus.New().WithField("test", t.Name())
	resolver := NewResolver(Config{
		Address:    "upstream.test:853",
		ServerName: "dnstoy.test",
		Dialer:     &pipeDialer{cert: cert},
	}, record, log)
	return resolver, record
}

func TestResolverRoundTripsAQuery(t *testing.T) {
	resolver, _ := newTestResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resolver.Run(ctx)

	qctx := &query.Context{ClientID: 0xBEEF}
	done := make(chan struct{})
	qctx.SetOnDone(func(*query.Context) { close(done) })
	qctx.ArmTimer(5 * time.Second)

	resolver.Resolve(qctx, framedQuery(qctx.ClientID))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolver round trip")
	}

	require.Equal(t, query.StatusAnswerWritten, qctx.Status())
	gotID, err := wire.ReadIDFromFrame(qctx.RawAnswer)
	require.NoError(t, err)
	require.Equal(t, qctx.ClientID, gotID)
}

func TestResolverTracksLoadAcrossCompletion(t *testing.T) {
	resolver, record := newTestResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resolver.Run(ctx)

	qctx := &query.Context{ClientID: 42}
	done := make(chan struct{})
	qctx.SetOnDone(func(*query.Context) { close(done) })
	qctx.ArmTimer(5 * time.Second)

	resolver.Resolve(qctx, framedQuery(qctx.ClientID))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolver round trip")
	}

	require.Eventually(t, func() bool {
		return record.Load() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestResolverPenalizesLateAnswerAfterExpiry(t *testing.T) {
	const upstreamDelay = 100 * time.Millisecond
	const queryTimeout = 10 * time.Millisecond

	cert := selfSignedCert(t)
	record := dispatch.NewRecord()
	log := logrus.New().WithField("test", t.Name())
	resolver := NewResolver(Config{
		Address:    "upstream.test:853",
		ServerName: "dnstoy.test",
		Dialer:     &pipeDialer{cert: cert, delay: upstreamDelay},
	}, record, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resolver.Run(ctx)

	qctx := &query.Context{ClientID: 7}
	expired := make(chan struct{})
	qctx.SetOnDone(func(*query.Context) { close(expired) })
	qctx.ArmTimer(queryTimeout)

	resolver.Resolve(qctx, framedQuery(qctx.ClientID))

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query to expire")
	}
	require.Equal(t, query.StatusExpired, qctx.Status())

	require.Eventually(t, func() bool {
		return record.EstimatedDelay() > 0
	}, time.Second, 10*time.Millisecond, "late answer was never recorded")

	// The upstream took roughly upstreamDelay to answer, but the
	// answer arrived after the query had already expired, so the
	// recorded cost must be scaled up (×1.5) rather than the raw
	// round-trip time; 1.3x leaves headroom for scheduling jitter
	// while still distinguishing a penalized sample from a raw one.
	require.Greater(t, record.EstimatedDelay(), upstreamDelay.Milliseconds()*13/10)
}

func TestNextRetryDoublesAndCaps(t *testing.T) {
	d := firstRetryInterval
	for i := 0; i < 20; i++ {
		d = nextRetry(d)
	}
	require.Equal(t, maxRetryInterval, d)
}

func TestConnectPropagatesDialError(t *testing.T) {
	expected := errors.New("dial failed")
	resolver := NewResolver(Config{
		Address:    "upstream.test:853",
		ServerName: "dnstoy.test",
		Dialer: dialerFunc(func(context.Context, string, string) (net.Conn, error) {
			return nil, expected
		}),
	}, dispatch.NewRecord(), logrus.New().WithField("test", t.Name()))

	_, err := resolver.connect(context.Background())
	require.ErrorIs(t, err, expected)
}

// dialerFunc adapts a plain function to the Config.Dialer interface,
// matching the teacher's FuncDialer adapter-stub pattern.
type dialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}
