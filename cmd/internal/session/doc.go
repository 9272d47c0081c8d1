// Package session implements the heartbeat core: the authoritative registry of
// monitored caregiving sessions, their check-in state machine, the bounded
// per-session event log, the periodic liveness sweep, and snapshot persistence.
//
// A session is active while check-ins keep arriving within interval+grace.
// Status is computed from elapsed time on every read; the stored status field
// only tracks whether the missed transition has already been emitted, so the
// sweep fires exactly once per miss.
//
// Every mutation appends an event, persists a snapshot (best-effort, ordered
// after the mutation), and fans out to live subscribers through a Broadcaster.
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
