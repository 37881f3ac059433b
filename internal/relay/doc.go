// Package relay provides the HTTP client for the relay that owns the IRC
// connections.
//
// # Overview
//
// The relay exposes a handful of JSON endpoints. This package performs the
// request/response exchanges, applies per-request timeouts, and decodes the
// wire tuples into typed Go values. It holds no session state and has no
// business logic: sequencing, retry and backoff live in the app package.
//
// # Endpoints
//
//   - POST get-state.json: full snapshot (windows, lines, connections, cursor,
//     CSRF token, flag constant table)
//   - POST get-updates.json: long poll for the update batch after a cursor
//   - POST do-actions.json: submit user actions; the reply is "OK" or an error
//   - POST get-time.json: relay clock in epoch milliseconds
//
// Every request carries the password as the "password" cookie. The relay
// answers a rejected password with a bare JSON string, which surfaces as
// *AuthError.
//
// # Update Decoding
//
// Updates arrive as tuples whose first element is an op-code string:
//
//	["APPEND", "net1", "#go", 12, 13, 4, "alice", "hello"]
//	["MARKREAD", "net1", "#go", 13]
//
// DecodeUpdate turns each tuple into one of the Update variants (Append,
// MyNick, Joined, ...). Tuples that cannot be decoded become Unknown with the
// decoding error attached, so one bad record never fails a whole batch.
//
// # Poll Outcomes
//
// GetUpdates returns a PollResult instead of an error:
//
//   - PollUpdated: a batch (possibly empty when the long poll expired)
//   - PollDesynced: the relay answered null; the cursor can no longer be resumed
//   - PollFailed: network error, timeout, HTTP error or undecodable body
//
// # Timeouts
//
//   - get-state.json: 10 seconds
//   - do-actions.json and get-time.json: 5 seconds
//   - get-updates.json: the max-wait hint plus 20 seconds
//
// All budgets are overridable with WithTimeouts.
package relay
