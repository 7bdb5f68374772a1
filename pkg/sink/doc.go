// Package sink persists relayed log events.
//
// The relay hands every emitted event to a Sink as a Record. FileSink
// appends one formatted entry per event to a plain text file:
//
//	[24/3/1 09:05:07 build/INFO] started
//	3
//
// The prefix is the uncolored display prefix; each message is rendered by
// a Serializer (YAML by default) and the parts are joined by newlines.
//
// Sink failures never reach the relay. FileSink warns on the first failed
// write and counts the rest silently. Async moves the file I/O off the
// distribution path.
package sink
