// Package listener is the receiving end of the relay protocol.
//
// A Listener accepts websocket connections (ServeWebsocket) or reads a named
// pipe (ServePipe). Each frame is base64 text of a JSON Update packet; it is
// decoded with codec.DecodePacket and recorded in a state.Store. Plain HTTP
// requests and bare TCP connects are reachability probes from a relay and are
// answered or ignored without error.
//
// Every good packet is logged with its totals and fingerprint and, when a
// StatusWriter is configured, summarized as one line such as
// "dm:2 msg:7 guild:3 @1" for a status bar reading a FIFO.
package listener
