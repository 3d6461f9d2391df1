package snapshot

import "strings"

// Builder assembles a Snapshot from raw host records. It owns the sparse
// container rule: containers with zero unread and zero mentions are skipped.
type Builder struct {
	snap Snapshot
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{snap: Empty()}
}

// DirectMessage records a direct conversation keyed by peer id.
func (b *Builder) DirectMessage(peerID string, dm DirectMessage) *Builder {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return b
	}
	b.snap.DirectMessages[peerID] = dm
	return b
}

// Group records a group conversation keyed by channel id.
func (b *Builder) Group(channelID string, g Group) *Builder {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return b
	}
	g.Members = normalizeMembers(g.Members)
	b.snap.Groups[channelID] = g
	return b
}

// Container records a guild-like container if it has anything unread.
func (b *Builder) Container(id string, c Container) *Builder {
	id = strings.TrimSpace(id)
	if id == "" || !c.Unread() {
		return b
	}
	b.snap.Containers[id] = c
	return b
}

// Build returns the assembled snapshot. The builder may keep being used; the
// returned value does not share maps with it.
func (b *Builder) Build() Snapshot {
	return b.snap.Normalize()
}
