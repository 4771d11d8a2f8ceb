// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads and validates the forwarder's key=value
// configuration file and parses its "remote-servers" grammar into a
// concrete list of [UpstreamSpec] values ready to dial.
package config
