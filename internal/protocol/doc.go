// Package protocol owns the host wire contract.
//
// Ownership boundary:
// - snapshot and change record shapes
// - presence-tracking optional fields
// - record validation and JSON codec entry points
//
// Framing lives in protocol/frame, session reliability in protocol/session.
package protocol
