// Package state holds the client's replica of the relay session.
//
// # Overview
//
// The Store is built from a full snapshot (LoadSnapshot) and then kept
// current by applying update batches in relay order (ApplyBatch). It holds:
//
//   - windows keyed by (profile, party), each with its line history, read
//     marker and unread counters
//   - connections keyed by profile, each with the current nickname and the
//     joined channels (members and topic)
//   - the sorted window key list and the active window pointer
//   - the update cursor and CSRF token
//
// # Concurrency Model
//
// One writer (the syncer goroutine) and many readers (the UI). Every method
// takes the Store's RWMutex; readers get copies, so nothing they hold can
// change underneath them.
//
//	Syncer:                          UI:
//	LoadSnapshot / ApplyBatch  ───→  WindowKeys / Window / Connection
//	        │                              ↑
//	        └──── ChangeSet ───────────────┘
//
// Every mutation returns a ChangeSet naming the windows and connections it
// touched, so the UI can redraw only what changed.
//
// # Cursor Handling
//
// ApplyBatch(from, batch) checks that the Store's cursor still equals from
// before touching anything. A batch fetched before a resync, or applied
// twice, fails with ErrStaleBatch and leaves the Store as it was.
//
// # Timestamps
//
// Lines arrive with timestamps relative to the previous line of the same
// window. Snapshot lines decode as a running sum from zero; appended lines
// continue from the last timestamp decoded for that window, even after old
// lines were truncated or cleared.
//
// # Anomalies
//
// Updates naming a window, connection or channel the Store does not have are
// skipped and reported in ChangeSet.Anomalies. They never stop a batch.
package state
