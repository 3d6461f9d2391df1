package snapshot

import "sort"

// Snapshot is the full unread state observed at one instant. It carries no
// identity beyond its content.
type Snapshot struct {
	DirectMessages map[string]DirectMessage `json:"dms"`
	Groups         map[string]Group         `json:"groups"`
	Containers     map[string]Container     `json:"guilds"`
}

// DirectMessage is the unread state of a one-to-one conversation, keyed by peer.
type DirectMessage struct {
	ChannelID     string `json:"channelId"`
	UnreadCount   uint32 `json:"unreadCount"`
	LastMessageID string `json:"lastMessageId"`
	DisplayName   string `json:"displayName"`
}

// Group is the unread state of a multi-user conversation.
type Group struct {
	UnreadCount   uint32 `json:"unreadCount"`
	LastMessageID string `json:"lastMessageId"`
	Name          string `json:"name"`
	Members       []User `json:"members"`
}

// User identifies a group member.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Container is a guild-like container. Only containers with unread messages or
// mentions appear in a Snapshot.
type Container struct {
	UnreadCount  uint32 `json:"unreadCount"`
	MentionCount uint32 `json:"mentionCount"`
	Name         string `json:"name"`
}

// Unread reports whether the container has anything left to read.
func (c Container) Unread() bool {
	return c.UnreadCount > 0 || c.MentionCount > 0
}

// Empty returns a snapshot with all maps allocated and nothing unread.
func Empty() Snapshot {
	return Snapshot{
		DirectMessages: map[string]DirectMessage{},
		Groups:         map[string]Group{},
		Containers:     map[string]Container{},
	}
}

// Normalize returns a copy with nil maps replaced by empty ones, member sets
// sorted and deduplicated by id, and fully read containers dropped.
func (s Snapshot) Normalize() Snapshot {
	out := Empty()
	for id, dm := range s.DirectMessages {
		out.DirectMessages[id] = dm
	}
	for id, g := range s.Groups {
		g.Members = normalizeMembers(g.Members)
		out.Groups[id] = g
	}
	for id, c := range s.Containers {
		if c.Unread() {
			out.Containers[id] = c
		}
	}
	return out
}

// Totals sums unread messages and mentions across the snapshot.
func (s Snapshot) Totals() Totals {
	var t Totals
	for _, dm := range s.DirectMessages {
		if dm.UnreadCount > 0 {
			t.Conversations++
		}
		t.Messages += int(dm.UnreadCount)
	}
	for _, g := range s.Groups {
		if g.UnreadCount > 0 {
			t.Conversations++
		}
		t.Messages += int(g.UnreadCount)
	}
	for _, c := range s.Containers {
		t.Containers++
		t.Mentions += int(c.MentionCount)
	}
	return t
}

// Totals is a compact summary used for logs and status lines.
type Totals struct {
	Conversations int
	Messages      int
	Containers    int
	Mentions      int
}

func normalizeMembers(members []User) []User {
	if len(members) == 0 {
		return []User{}
	}
	byID := make(map[string]User, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	out := make([]User, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
