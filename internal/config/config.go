// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the forwarder's fully parsed, defaulted settings.
type Config struct {
	ListenAddress net.IP

	ListenPort uint16

	// UDPPayloadSizeLimit bounds the size of a UDP reply; larger
	// upstream answers are truncated (TC=1) before being sent to the
	// client.
	UDPPayloadSizeLimit uint16

	// QueryTimeout is the per-query deadline after which a query's
	// [query.Context] transitions to EXPIRED and a failure reply is
	// synthesized.
	QueryTimeout time.Duration

	// EDNS0ClientSubnet is parsed and validated but not yet injected
	// into upstream queries; see SPEC_FULL.md's Open Question on ECS.
	EDNS0ClientSubnet *net.IPNet

	// RemoteServers is the parsed upstream list, in configuration
	// order; [Dispatcher] ranks across it in this same order.
	RemoteServers []UpstreamSpec
}

// Default values, matching the original implementation's
// configuration.hpp.
const (
	defaultListenAddress       = "0.0.0.0"
	defaultListenPort          = 53
	defaultUDPPayloadSizeLimit = 65507
	defaultQueryTimeout        = 10 * time.Second
	defaultEDNS0ClientSubnet   = "0.0.0.0/0"
	defaultRemoteServers       = "tls@853/1.0.0.1/cloudflare-dns.com"
)

// Default returns a Config populated entirely with default values,
// as if loading an empty configuration file.
func Default() (*Config, error) {
	return parseLines(strings.NewReader(""))
}

// Load reads and parses the key=value configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return parseLines(f)
}

// knownKeys are the only keys Load accepts; anything else is a
// startup-fatal configuration error, not silently ignored.
var knownKeys = map[string]bool{
	"listen-address":      true,
	"listen-port":         true,
	"udp-payload-size-limit": true,
	"query-timeout":       true,
	"edns0-client-subnet": true,
	"remote-servers":      true,
}

func parseLines(r io.Reader) (*Config, error) {
	values := map[string]string{
		"listen-address":         defaultListenAddress,
		"listen-port":            strconv.Itoa(defaultListenPort),
		"udp-payload-size-limit": strconv.Itoa(defaultUDPPayloadSizeLimit),
		"query-timeout":          strconv.Itoa(int(defaultQueryTimeout / time.Millisecond)),
		"edns0-client-subnet":    defaultEDNS0ClientSubnet,
		"remote-servers":         defaultRemoteServers,
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: line %d: missing '=' in %q", lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !knownKeys[key] {
			return nil, fmt.Errorf("config: line %d: unknown key %q", lineNo, key)
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return build(values)
}

func build(values map[string]string) (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddress = net.ParseIP(values["listen-address"])
	if cfg.ListenAddress == nil {
		return nil, fmt.Errorf("config: invalid listen-address %q", values["listen-address"])
	}

	port, err := parseUint16(values["listen-port"])
	if err != nil {
		return nil, fmt.Errorf("config: invalid listen-port: %w", err)
	}
	cfg.ListenPort = port

	limit, err := parseUint16(values["udp-payload-size-limit"])
	if err != nil {
		return nil, fmt.Errorf("config: invalid udp-payload-size-limit: %w", err)
	}
	cfg.UDPPayloadSizeLimit = limit

	timeoutMillis, err := strconv.Atoi(values["query-timeout"])
	if err != nil || timeoutMillis <= 0 {
		return nil, fmt.Errorf("config: invalid query-timeout %q", values["query-timeout"])
	}
	cfg.QueryTimeout = time.Duration(timeoutMillis) * time.Millisecond

	_, ecs, err := net.ParseCIDR(values["edns0-client-subnet"])
	if err != nil {
		return nil, fmt.Errorf("config: invalid edns0-client-subnet: %w", err)
	}
	cfg.EDNS0ClientSubnet = ecs

	servers, err := ParseRemoteServers(values["remote-servers"])
	if err != nil {
		return nil, fmt.Errorf("config: invalid remote-servers: %w", err)
	}
	cfg.RemoteServers = servers

	return cfg, nil
}

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
