// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// defaultTLSPort is the port a bare "tls" transport token implies
// (RFC 7858).
const defaultTLSPort = 853

// UpstreamSpec describes one configured upstream resolver before
// startup-time hostname resolution: a TLS port, zero or more literal
// addresses to try, and the hostname to verify the certificate
// against (and to resolve addresses from, if none were given).
type UpstreamSpec struct {
	Port      uint16
	Addresses []string
	Hostname  string
}

// ParseRemoteServers parses the "remote-servers" grammar: a
// comma-separated list of entries, each with up to three
// slash-separated fields (transport-spec / address-list / hostname).
// The transport-spec and address-list fields may each carry several
// pipe-separated alternatives; only the first transport-spec
// alternative is meaningful today since DNS-over-TLS is the only
// supported transport, but address-list alternatives are all kept, in
// order, in [UpstreamSpec.Addresses].
func ParseRemoteServers(value string) ([]UpstreamSpec, error) {
	var specs []UpstreamSpec
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		spec, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no upstream servers configured")
	}
	return specs, nil
}

func parseEntry(entry string) (UpstreamSpec, error) {
	fields := strings.SplitN(entry, "/", 3)

	port, err := parseTransport(fields[0])
	if err != nil {
		return UpstreamSpec{}, err
	}

	var addresses []string
	if len(fields) >= 2 && fields[1] != "" {
		for _, a := range strings.Split(fields[1], "|") {
			a = strings.TrimSpace(a)
			if a != "" {
				addresses = append(addresses, a)
			}
		}
	}

	hostname := ""
	if len(fields) == 3 {
		hostname = strings.TrimSpace(fields[2])
	}

	if len(addresses) == 0 && hostname == "" {
		return UpstreamSpec{}, fmt.Errorf("entry %q gives neither an address nor a hostname to resolve", entry)
	}
	if hostname != "" {
		normalized, err := idna.Lookup.ToASCII(hostname)
		if err != nil {
			return UpstreamSpec{}, fmt.Errorf("entry %q: invalid hostname %q: %w", entry, hostname, err)
		}
		hostname = normalized
	}

	return UpstreamSpec{Port: port, Addresses: addresses, Hostname: hostname}, nil
}

// parseTransport accepts "tls" or "tls@<port>", taking the first
// pipe-separated alternative.
func parseTransport(field string) (uint16, error) {
	alt := strings.SplitN(field, "|", 2)[0]
	alt = strings.TrimSpace(alt)

	name, portStr, hasPort := strings.Cut(alt, "@")
	if name != "tls" {
		return 0, fmt.Errorf("unsupported transport %q", name)
	}
	if !hasPort {
		return defaultTLSPort, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid transport port %q: %w", portStr, err)
	}
	return uint16(port), nil
}

// ResolveAddresses returns the dial targets ("host:port" strings) for
// spec, resolving its hostname via the system resolver at startup
// when no literal addresses were configured, exactly as the original
// implementation does.
func ResolveAddresses(ctx context.Context, spec UpstreamSpec) ([]string, error) {
	if len(spec.Addresses) > 0 {
		out := make([]string, len(spec.Addresses))
		for i, a := range spec.Addresses {
			out[i] = net.JoinHostPort(a, strconv.Itoa(int(spec.Port)))
		}
		return out, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, spec.Hostname)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", spec.Hostname, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %q", spec.Hostname)
	}
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = net.JoinHostPort(ip.String(), strconv.Itoa(int(spec.Port)))
	}
	return out, nil
}
