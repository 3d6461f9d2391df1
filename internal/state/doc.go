// Package state holds the listener's latest view of the relayed unread state.
//
// # Overview
//
// The listener decodes packets on its own goroutines and records each one in a
// Store. Readers (the watch UI and the status-line writer) take copies with
// Snapshot on their own schedule.
//
//	Listener:                      Watch UI:
//	┌────────────────┐            ┌─────────────────┐
//	│ DecodePacket() │            │                 │
//	│      ↓         │            │                 │
//	│ store.Update() │───────────→│ store.Snapshot()│
//	└────────────────┘  (mutex)   └─────────────────┘
//
// # Update Semantics
//
//	store.Update(unread, revive, nil)
//	→ view.Unread = unread
//	→ view.Packets++ (and Resyncs++ when revive)
//	→ view.LastError = nil, LastUpdated = now
//
//	store.Update(_, _, err)
//	→ previous data kept
//	→ view.LastError = err, ConsecutiveFailures++
//
// LastUpdated only moves on a good packet, so IsStale measures the time since
// the sender was last heard from.
//
// # Copying
//
// Snapshot returns the unread maps through snapshot.Normalize, which allocates
// fresh maps, and wraps the error so callers never share it.
//
// The zero Store is ready to use.
package state
