// Package hostlink carries snapshots and changes from the host application
// into the mirror. A Client holds a reconnecting TCP session with the host;
// ReadAll replays frames from any reader, such as a recorded stream.
//
// Both paths share one Dispatcher: successful records are acked, and a
// record the mirror cannot apply puts its document into resync, which drops
// further changes for it until a fresh snapshot arrives.
package hostlink
