// SPDX-License-Identifier: GPL-3.0-or-later

// Package dispatch ranks upstream resolvers by predicted latency and
// decides, for each query, which upstream(s) to send it to.
//
// Each upstream carries a [Record]: a ring buffer of its last 16
// round-trip latencies plus its current load (outstanding query
// count). [Record.EstimatedDelay] blends the moving average with the
// slope of a least-squares fit over those samples, so an upstream
// that degrades under load is penalized ahead of time rather than
// only after it has already gotten slow. [Dispatcher.Select] always
// routes to the lowest-estimate upstream, and periodically also
// probes an idle alternative so a historically slow-when-busy
// upstream gets a chance to prove itself fast-when-idle and reclaim
// rank.
package dispatch
