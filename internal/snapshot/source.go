package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrSourceUnavailable marks a provider that cannot produce data right now.
var ErrSourceUnavailable = errors.New("snapshot source unavailable")

// Source returns the current unread state on demand. Implementations must not
// block indefinitely; ctx bounds the call.
type Source interface {
	Capture(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

// Capture implements Source.
func (f SourceFunc) Capture(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Static always returns the same snapshot.
type Static Snapshot

// Capture implements Source.
func (s Static) Capture(context.Context) (Snapshot, error) {
	return Snapshot(s).Normalize(), nil
}

// FileSource reads a JSON state file written by a host hook. The file uses the
// same layout as the wire payload; fully read containers are dropped on load.
type FileSource struct {
	Path string
}

// Capture implements Source.
func (f FileSource) Capture(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, f.Path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: parse %s: %v", ErrSourceUnavailable, f.Path, err)
	}
	return snap.Normalize(), nil
}

// Fallback wraps a Source so that failures degrade to an empty snapshot. The
// first failure of a streak is logged; recovery is logged once as well.
type Fallback struct {
	source Source
	logger *zap.SugaredLogger

	mu      sync.Mutex
	failing bool
}

// NewFallback wraps source. A nil logger disables logging.
func NewFallback(source Source, logger *zap.SugaredLogger) *Fallback {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fallback{source: source, logger: logger}
}

// Capture never fails: an unavailable source yields Empty().
func (f *Fallback) Capture(ctx context.Context) Snapshot {
	snap, err := f.source.Capture(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		if !f.failing {
			f.logger.Warnw("Snapshot source unavailable, continuing with empty state", "error", err)
		}
		f.failing = true
		return Empty()
	}
	if f.failing {
		f.logger.Infow("Snapshot source recovered")
	}
	f.failing = false
	return snap.Normalize()
}

// Failing reports whether the last capture failed.
func (f *Fallback) Failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing
}
