// Package app is the composition root for unreadbell.
//
// # Overview
//
// Each command wires configuration, logging, metrics and the domain packages
// together and runs them under one errgroup until the context is cancelled:
//
//   - Run: the relay. A Scheduler samples the unread source every tick, asks
//     the detector whether the state changed and hands encoded packets to the
//     connection manager.
//   - Listen: the receiving side, over websocket or a named pipe.
//   - Watch: Listen in the background plus the terminal view.
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()          file, address file, env, flags
//	       ├─────> newSource()            static, file or host API
//	       ├─────> transport.New()        websocket or pipe dialer
//	       ├─────> conn.New()             reconnecting channel
//	       └─────> NewScheduler()         tick loop
//
//	Scheduler tick:
//	┌─────────────────────────────────────────────┐
//	│ Fallback.Capture()   never fails            │
//	│ Detector.Evaluate()  changed, forced, idle  │
//	│ codec.EncodePacket()                        │
//	│ Manager.Send()       dropped if offline     │
//	│ Detector.Commit()    only after a send      │
//	└─────────────────────────────────────────────┘
//
// Every successful connect calls Scheduler.RequestResync, so the listener
// receives the full state with revive set as soon as the link is back.
//
// # Error Handling
//
// Configuration and initialization errors are returned from the command.
// Source outages, dial failures and lost sends are logged and absorbed by the
// layer that owns them; the relay keeps ticking.
package app
