// Package hostapi provides an HTTP client for a host application's local
// unread-state API.
//
// # Overview
//
// The host exposes a single read-only endpoint:
//
//   - GET /api/unread: direct messages, groups and guilds as flat lists
//
// The client converts that payload into a snapshot.Snapshot through
// snapshot.Builder, so the sparse container rule and member normalization are
// applied in one place. Client implements snapshot.Source and is normally
// wrapped in snapshot.Fallback by the relay.
//
// # Client Usage
//
//	client, err := hostapi.NewClient("127.0.0.1:8080", token)
//	if err != nil {
//		return err
//	}
//	snap, err := client.Capture(ctx)
//
// # Error Handling
//
// Transport errors, non-2xx statuses and undecodable bodies are all wrapped in
// snapshot.ErrSourceUnavailable by Capture. FetchUnread returns them unwrapped.
//
// Requests time out after 2 seconds so a hung host cannot stall a tick for
// long.
package hostapi
