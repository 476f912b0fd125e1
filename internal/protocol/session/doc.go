// Package session owns the host link session helpers.
//
// Ownership boundary:
// - hello handshake control messages
// - snapshot/change/resync/ack frame payloads
// - retry/backoff and pending resync bookkeeping
package session
