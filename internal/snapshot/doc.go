// Package snapshot defines the unread-state value the relay observes and the
// sources that produce it.
//
// # Overview
//
// A Snapshot holds three maps: direct messages keyed by peer, groups keyed by
// channel, and guild-like containers keyed by container id. Containers are
// sparse: a container that has neither unread messages nor mentions is absent,
// and absence means "fully read".
//
// Snapshots are plain values. Equality is defined by the canonical encoding in
// package codec, never by pointer or map identity.
//
// # Sources
//
//   - Source: the capture interface the scheduler polls
//   - FileSource: reads a JSON dump written by a host hook
//   - Static: a fixed value for dry runs and tests
//   - Fallback: wraps any Source and degrades failures to Empty()
//
// The HTTP source for a host application's unread API lives in package hostapi.
//
// # Error Handling
//
// Sources report ErrSourceUnavailable (wrapped). Fallback absorbs it, logs the
// first failure of a streak, and returns an empty snapshot so the relay keeps
// running with degraded data.
package snapshot
