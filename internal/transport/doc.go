// Package transport provides the channels the relay writes frames to.
//
// # Overview
//
// The relay only depends on three capabilities:
//
//   - Dialer.Open returns a Channel to an address
//   - Prober.Probe checks reachability before a dial (optional)
//   - Channel sends one frame and reports a remote close or error once
//
// New maps a Kind to its dialer and prober.
//
// # Websocket
//
// WebsocketDialer uses gorilla/websocket. Each open carries a fresh
// google/uuid in the SessionHeader header so listener logs can tell relay
// connections apart. Frames go out as single text messages with a write
// deadline. TCPProber dials the host and port of the ws/wss URL.
//
// # Pipe
//
// PipeDialer opens an existing FIFO write-only and non-blocking, so a FIFO
// with no reader fails the open instead of hanging. Frames are
// newline-terminated. Each write has a deadline; a reader that holds the FIFO
// open but stops draining it turns into a send failure. PathProber checks
// that the path exists. The listener creates the FIFO, never the relay.
//
// # Events
//
// Close and error events can fire before the caller registers handlers; they
// are buffered and delivered at most once. Channel.Close silences both.
package transport
