// Package logtail reads the tail of tether's own log file for the in-app
// log pane.
//
// # Reading
//
// Read extracts the last N lines of a file with a ring buffer of size N, so
// memory stays O(N) regardless of file size and a single sequential pass is
// enough. A missing file is not an error; the log may simply not exist yet.
//
//	lines, err := logtail.Read("~/.local/state/tether/tether.log", 400)
//
// # Parsing
//
// tether logs through slog's text handler (see package logging), which
// writes space separated key=value pairs with quoted values where needed:
//
//	time=2026-03-01T12:00:00.000Z level=WARN msg="poll failed" component=syncer err="timeout"
//
// Parse turns such a line into an Entry with the time, level and message
// lifted out and the remaining pairs kept in order as Attrs. Anything that
// does not look like a text handler line (a panic trace, output from an
// older build) comes back as an info entry whose message is the raw line.
//
// Tail combines both and drops entries below a minimum level. The UI owns
// all styling; this package never emits color codes.
package logtail
