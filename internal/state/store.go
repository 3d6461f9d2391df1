package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/unreadbell/internal/snapshot"
)

// View is the latest listener state available to the UI and status output.
type View struct {
	Unread      snapshot.Snapshot
	HasPacket   bool
	Revive      bool // last packet was a forced resync
	Packets     int
	Resyncs     int
	Clients     int
	LastUpdated time.Time
	LastError   error
	// ConsecutiveFailures counts undecodable frames since the last good one.
	ConsecutiveFailures int
}

// IsDegraded reports repeated undecodable input.
func (v View) IsDegraded() bool {
	return v.ConsecutiveFailures >= 2
}

// IsStale reports that no packet has arrived within maxAge. A relay re-sends
// at least every force interval while connected, so a longer gap means the
// sender is gone.
func (v View) IsStale(now time.Time, maxAge time.Duration) bool {
	if !v.HasPacket {
		return true
	}
	return now.Sub(v.LastUpdated) > maxAge
}

// Store coordinates concurrent updates to the view.
type Store struct {
	mu   sync.RWMutex
	view View
}

// Update records a received packet. When err is non-nil the previous data is
// kept but the error is recorded for visibility.
func (s *Store) Update(unread snapshot.Snapshot, revive bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.view.LastError = err
		s.view.ConsecutiveFailures++
		return
	}

	s.view.Unread = unread.Normalize()
	s.view.HasPacket = true
	s.view.Revive = revive
	s.view.Packets++
	if revive {
		s.view.Resyncs++
	}
	s.view.LastError = nil
	s.view.LastUpdated = time.Now()
	s.view.ConsecutiveFailures = 0
}

// ClientConnected and ClientDisconnected track live relay connections.
func (s *Store) ClientConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Clients++
}

func (s *Store) ClientDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.Clients > 0 {
		s.view.Clients--
	}
}

// Snapshot returns a copy of the current view.
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.view
	if s.view.HasPacket {
		v.Unread = s.view.Unread.Normalize()
	}
	if s.view.LastError != nil {
		v.LastError = fmt.Errorf("%w", s.view.LastError)
	}
	return v
}
