// Package app is the composition root for tether.
//
// # Overview
//
// Run loads configuration and preferences, opens the log file, builds the
// relay client and the shared state.Store, and then starts three moving
// parts: the Syncer, the Dispatcher and the Bubble Tea program.
//
//  1. Load ~/.config/tether/config.toml (relay address, password, timeouts)
//  2. Load UI preferences; unreadable prefs fall back to defaults
//  3. Route slog output to the log file (the TUI owns the terminal)
//  4. Create relay.Client, state.Store, Metrics and the optional /metrics listener
//  5. Start the Syncer goroutine and run the TUI until the user quits
//
// # Components
//
//   - app.go: Run, the UI backend adapter and the message pump
//   - syncer.go: snapshot, long-poll and resync loop
//   - backoff.go: exponential retry delay between floor and ceiling
//   - dispatcher.go: asynchronous action submission and the failed-action list
//   - notify.go: desktop notifications for highlighted lines
//   - metrics.go: Prometheus collectors and the metrics HTTP listener
//
// # Sync Loop
//
//	authenticating ─> fetching snapshot ─> live ──poll──> live
//	                        ^                │
//	                        │   desync       │ transport error
//	                        └── resyncing <──┴──> backoff, poll again
//
// The Syncer is the only writer to the Store for relay updates. It fetches a
// snapshot, then chains long polls from the snapshot cursor. A transport
// failure keeps the cursor and retries after a backoff delay. A desync or a
// rejected cursor discards the session and fetches a fresh snapshot. An
// authentication failure stops the loop in the failed phase until the user
// asks for a retry.
//
// Each Store mutation produces a state.ChangeSet. The Syncer hands it to the
// change handler, which raises desktop notifications for highlights and
// queues a ui.ChangesMsg. A single pump goroutine forwards queued messages
// to the program in order, so the loop never blocks on rendering.
//
// # Actions
//
// User actions go through the Dispatcher. Submissions run on their own
// goroutine with the current cursor and CSRF token, and never touch the Store:
// their effects come back through the update stream. Rejected submissions
// are kept, newest last, for the failures view.
package app
