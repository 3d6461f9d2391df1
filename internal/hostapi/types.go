package hostapi

import "github.com/five82/unreadbell/internal/snapshot"

// UnreadResponse mirrors the payload returned by /api/unread. The host reports
// flat lists; ToSnapshot keys them and applies the sparse container rule.
type UnreadResponse struct {
	DirectMessages []DirectMessage `json:"dms"`
	Groups         []Group         `json:"groups"`
	Guilds         []Guild         `json:"guilds"`
}

// DirectMessage is one private conversation as the host reports it.
type DirectMessage struct {
	PeerID        string `json:"peerId"`
	ChannelID     string `json:"channelId"`
	UnreadCount   uint32 `json:"unreadCount"`
	LastMessageID string `json:"lastMessageId"`
	DisplayName   string `json:"displayName"`
}

// Group is one multi-party conversation.
type Group struct {
	ChannelID     string   `json:"channelId"`
	UnreadCount   uint32   `json:"unreadCount"`
	LastMessageID string   `json:"lastMessageId"`
	Name          string   `json:"name"`
	Members       []Member `json:"members"`
}

// Member is a participant of a group.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Guild is a container of channels with aggregate counts.
type Guild struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UnreadCount  uint32 `json:"unreadCount"`
	MentionCount uint32 `json:"mentionCount"`
}

// ToSnapshot converts the host lists into a normalized Snapshot. Records with
// blank ids are dropped; a later duplicate id replaces an earlier one.
func (r UnreadResponse) ToSnapshot() snapshot.Snapshot {
	b := snapshot.NewBuilder()
	for _, dm := range r.DirectMessages {
		b.DirectMessage(dm.PeerID, snapshot.DirectMessage{
			ChannelID:     dm.ChannelID,
			UnreadCount:   dm.UnreadCount,
			LastMessageID: dm.LastMessageID,
			DisplayName:   dm.DisplayName,
		})
	}
	for _, g := range r.Groups {
		members := make([]snapshot.User, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, snapshot.User{ID: m.ID, Username: m.Username})
		}
		b.Group(g.ChannelID, snapshot.Group{
			UnreadCount:   g.UnreadCount,
			LastMessageID: g.LastMessageID,
			Name:          g.Name,
			Members:       members,
		})
	}
	for _, guild := range r.Guilds {
		b.Container(guild.ID, snapshot.Container{
			UnreadCount:  guild.UnreadCount,
			MentionCount: guild.MentionCount,
			Name:         guild.Name,
		})
	}
	return b.Build()
}
