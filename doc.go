// Package session reconciles an external identity provider's asynchronous
// session events with a locally cached user-profile document, and derives
// role-based authorization from the synchronized profile.
//
// Session lifecycle:
//   - Store owns the authoritative SessionState (identity, profile, loading,
//     error) behind a single-writer event loop. Provider events are delivered
//     through an ordered channel and settle through a state machine covering
//     initial, syncing, ready (authenticated or anonymous), and torn-down
//     states. Listeners registered via Subscribe are notified on settlement
//     only, never on entry to the syncing state.
//   - Each in-flight synchronization is tagged with the event sequence it was
//     issued for. A result that arrives after a newer session event has
//     superseded it is discarded rather than applied.
//
// Profile synchronization:
//   - Synchronizer races a read-merge-write reconciliation of the profile
//     document against a timeout. A slow or unreachable profile store
//     degrades the session (profile absent) instead of blocking it; sync
//     never propagates an error to its caller.
//
// Retrying requests:
//   - RetryExecutor runs fallible operations with exponential backoff and an
//     error classifier that short-circuits terminal failures. Account
//     recovery commands (password reset, verification resend) run through it.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing state
//     transitions, soft sync failures, stale discards, role changes, and
//     recovery requests. Sinks run best-effort (errors are logged) so you can
//     forward to a database or queue without blocking session handling.
package session
