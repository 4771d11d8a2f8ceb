// SPDX-License-Identifier: GPL-3.0-or-later

package upstream

import (
	"github.com/bassosimone/dnstoy/internal/query"
	"github.com/bassosimone/runtimex"
)

// idTable maps a locally-issued transaction ID back to the
// [query.Context] that is waiting for its answer on this connection.
// It contains at most one entry per outstanding query and is the sole
// authority for response dispatch on the connection it belongs to.
type idTable struct {
	entries map[uint16]*query.Context
	next    uint16
}

// newIDTable creates an empty idTable.
func newIDTable() *idTable {
	return &idTable{entries: make(map[uint16]*query.Context)}
}

// allocate issues the next local ID off a monotonically counting
// 16-bit sequence and registers qctx under it. A collision with a
// still-outstanding entry (the counter has wrapped all the way around
// while that entry was in flight) is never resolved by overwriting:
// allocate simply advances the counter and retries, exactly as the
// connection's own event loop would retry the same I/O step, until it
// finds a free ID.
func (t *idTable) allocate(qctx *query.Context) uint16 {
	for {
		id := t.next
		t.next++
		if _, taken := t.entries[id]; taken {
			continue
		}
		t.entries[id] = qctx
		runtimex.Assert(len(t.entries) <= 1<<16)
		return id
	}
}

// take removes and returns the context registered under id, if any.
func (t *idTable) take(id uint16) (*query.Context, bool) {
	qctx, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return qctx, ok
}

// drainAll removes and returns every still-registered context, used
// when a connection is reset and every outstanding query must be
// re-dispatched on the next one.
func (t *idTable) drainAll() []*query.Context {
	out := make([]*query.Context, 0, len(t.entries))
	for id, qctx := range t.entries {
		out = append(out, qctx)
		delete(t.entries, id)
	}
	return out
}
