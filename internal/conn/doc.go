// Package conn keeps one logical connection to the listener alive across
// disconnects.
//
// # Overview
//
// A Manager owns at most one transport.Channel and moves through four states
// driven by a looplab/fsm machine:
//
//	disconnected ──probe──> probing ──dial──> connecting ──opened──> connected
//	      ^                    │                   │                     │
//	      └───────────lost─────┴─────────lost──────┴────────lost─────────┘
//
// With no Prober configured the probing state is skipped. Every failed probe,
// failed open, remote close, transport error or failed write lands in
// disconnected and schedules the next attempt after a constant delay
// (cenkalti/backoff ConstantBackOff, default 5s). There is no attempt cap.
//
// # Sending
//
// Send frames the text for the channel kind and writes it once. While not
// connected it returns ErrNotConnected and the message is dropped. A failed
// write returns ErrSendFailed, closes the channel and schedules a reconnect;
// the message is not retried.
//
// # Signals
//
// OnConnected callbacks run each time a channel finishes opening. The relay
// registers Scheduler.RequestResync there so the next update is forced.
//
// # Lifecycle
//
// Start schedules the first attempt and returns. Stop cancels any pending
// retry and closes the open channel without raising close or error events.
// Both are safe to call repeatedly and from any state. Run wraps the pair
// around a context.
package conn
