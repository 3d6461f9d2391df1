// Package detector decides whether a snapshot is worth emitting.
package detector

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/snapshot"
)

// DefaultForceInterval is the liveness ceiling after which an unchanged
// snapshot is re-sent as a forced resync.
const DefaultForceInterval = 120 * time.Second

// ErrEncoding marks a snapshot the codec refused. It indicates a data-model bug.
var ErrEncoding = errors.New("snapshot encoding failed")

// Decision is the outcome of one evaluation.
type Decision struct {
	Emit     bool
	Forced   bool
	Encoding []byte
	At       time.Time
}

// Detector compares the canonical encoding of each snapshot with the last one
// that was successfully sent.
type Detector struct {
	forceInterval time.Duration

	mu           sync.Mutex
	lastEncoding []byte
	lastEmit     time.Time
}

// New returns a Detector. A non-positive interval uses DefaultForceInterval.
func New(forceInterval time.Duration) *Detector {
	if forceInterval <= 0 {
		forceInterval = DefaultForceInterval
	}
	return &Detector{forceInterval: forceInterval}
}

// Evaluate decides whether snap must be emitted at now. reestablished is true
// when the connection came back since the last committed emit. Evaluate does
// not change the retained state; call Commit once the send went through.
func (d *Detector) Evaluate(snap snapshot.Snapshot, now time.Time, reestablished bool) (Decision, error) {
	encoding, err := codec.Encode(snap)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	forced := reestablished
	if !d.lastEmit.IsZero() && now.Sub(d.lastEmit) >= d.forceInterval {
		forced = true
	}
	changed := d.lastEncoding == nil || !bytes.Equal(encoding, d.lastEncoding)

	return Decision{
		Emit:     changed || forced,
		Forced:   forced,
		Encoding: encoding,
		At:       now,
	}, nil
}

// Commit records an emitted decision. Decisions that did not emit are ignored.
func (d *Detector) Commit(dec Decision) {
	if !dec.Emit {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastEncoding = append(d.lastEncoding[:0], dec.Encoding...)
	d.lastEmit = dec.At
}

// LastEmit returns the time of the last committed emit, zero if none.
func (d *Detector) LastEmit() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastEmit
}

// Fingerprint returns a short digest of the last committed encoding for logs.
func (d *Detector) Fingerprint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastEncoding == nil {
		return ""
	}
	return Fingerprint(d.lastEncoding)
}

// Fingerprint hashes an encoding into a 16 hex digit string.
func Fingerprint(encoding []byte) string {
	sum := xxhash.Sum64(encoding)
	s := strconv.FormatUint(sum, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
