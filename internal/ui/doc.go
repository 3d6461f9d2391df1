// Package ui provides the read-only terminal view started by "unreadbell
// watch".
//
// The model polls a state.Store fed by the embedded listener and renders two
// panes:
//
//   - Unread: conversations sorted by unread count, then guilds with their
//     mention counts, under a header badge showing the link status (waiting,
//     live, resync, stale, degraded)
//   - Logs: the tail of the relay log file, decoded by logtail and tinted by
//     level, optionally following new output
//
// Theme, pane and follow mode are saved through the prefs package whenever
// they change. Key bindings are declared once in keys.go and drive both input
// handling and the help overlay.
package ui
