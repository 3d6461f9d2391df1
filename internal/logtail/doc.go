// Package logtail reads the tail of the relay's log file for the watch UI.
//
// # Reading
//
// Read keeps a ring buffer of maxLines entries while scanning the file once,
// so memory stays O(maxLines) however large the log grows. A missing file is
// not an error; the UI simply shows nothing until the first entry is written.
//
//	lines, err := logtail.Read(cfg.LogFilePath(), 400)
//
// # Formatting
//
// The log file sink writes one JSON object per line. Parse decodes the
// well-known keys (time, level, component, msg) and keeps the rest as fields;
// Entry.String renders
//
//	2025-12-13 10:11:12 WARN [conn] – Connection attempt failed address=ws://127.0.0.1:3631 retry_in=5s
//
// with fields sorted by key. Lines that are not JSON are shown unchanged.
package logtail
