// Package config loads the unreadbell configuration.
//
// # Resolution Order
//
// Later steps override earlier ones:
//
//  1. Built-in defaults (Default)
//  2. TOML file, ~/.config/unreadbell/config.toml unless a path is given
//  3. address_file: first non-empty line replaces address
//  4. A .env file in the working directory, if present
//  5. UNREADBELL_* environment variables
//
// Command-line flags are applied by the caller after Load returns.
//
// # TOML Format
//
//	address = "ws://127.0.0.1:3631"
//	address_file = "~/.config/unreadbell/websocket.url"
//	transport = "websocket"       # or "pipe"
//	pipe_path = "/tmp/unread-bell-discord.pipe"
//	tick_period = "1s"
//	warmup_delay = "2.5s"
//	reconnect_delay = "5s"
//	force_interval = "2m"
//	probe = true
//	metrics_bind = "127.0.0.1:9100"
//
//	[source]
//	kind = "file"                 # static, file or http
//	path = "~/.local/share/unreadbell/unread.json"
//	url = "http://127.0.0.1:8080"
//	token = ""
//
//	[log]
//	level = "info"
//	format = "console"            # or "json"
//	file = ""
//
//	[listen]
//	bind = "127.0.0.1:3631"
//	pipe_path = ""
//	output = ""
//
// Every field is optional. Durations use Go syntax. Tilde expansion applies to
// all path fields.
//
// # Errors
//
// A missing config file is not an error. Unreadable or malformed files,
// unparseable durations, unknown transports or source kinds, and a websocket
// address without a ws/wss scheme are.
package config
