// Package log provides protocol capture for the log relay.
//
// It is separate from operational logging (slog) and from the relay's own
// log traffic: a capture is a machine-readable trace of every frame, control
// message and state change seen on a connection, used to debug clients and
// replay sessions offline.
//
// # Basic Usage
//
// Servers and clients accept a Logger in their config:
//
//	// Console trace via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/logrelay.cap")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded relay frames (MessageEvent)
//   - Relay: session and subscription state (StateChangeEvent)
//
// Control frames (ping/pong/close) and errors have dedicated event types.
//
// # File Format
//
// Capture files are a plain concatenation of CBOR-encoded events. The
// logrelay-log tool views, filters and summarizes them.
package log
