// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

// idleProbeThreshold is the load level at or below which a
// non-primary upstream is considered idle enough to probe, chosen
// (along with [sampleCount]) as a fixed constant rather than a
// configuration key.
const idleProbeThreshold = 3

// Dispatcher ranks a fixed set of upstreams, identified by index into
// records, and decides per query which index (or two) to send it to.
// It keeps round-robin state across calls so idle-probe opportunities
// rotate fairly among non-primary upstreams.
//
// A Dispatcher is owned by a single worker and is not safe for
// concurrent use.
type Dispatcher struct {
	records     []*Record
	probeCursor int
}

// NewDispatcher creates a Dispatcher over records, one per upstream,
// in a fixed, stable index order.
func NewDispatcher(records []*Record) *Dispatcher {
	return &Dispatcher{records: records}
}

// Select returns the index of the primary upstream to dispatch to,
// plus the index of an idle-probe upstream and true if one qualifies.
// If records is empty it returns primary 0, which is not a valid
// index; callers must not dispatch with zero configured upstreams.
func (d *Dispatcher) Select() (primary int, probe int, hasProbe bool) {
	primary = d.lowestEstimate()
	if len(d.records) < 2 {
		return primary, 0, false
	}

	probe = d.nextProbeCandidate(primary)
	if d.records[probe].Load() <= idleProbeThreshold {
		return primary, probe, true
	}
	return primary, 0, false
}

// lowestEstimate returns the index with the smallest estimated delay,
// breaking ties toward the lower index for determinism.
func (d *Dispatcher) lowestEstimate() int {
	best := 0
	for i := 1; i < len(d.records); i++ {
		if d.records[i].EstimatedDelay() < d.records[best].EstimatedDelay() {
			best = i
		}
	}
	return best
}

// nextProbeCandidate advances the round-robin cursor to the next
// index other than primary.
func (d *Dispatcher) nextProbeCandidate(primary int) int {
	for {
		idx := d.probeCursor
		d.probeCursor = (d.probeCursor + 1) % len(d.records)
		if idx != primary {
			return idx
		}
	}
}
