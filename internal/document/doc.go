// Package document mirrors one host document and reconciles its change
// stream.
//
// A Document is built once from a snapshot and mutated only by ApplyChange.
// ApplyChange validates the record against the document (id, version,
// count, timestamp), stages any layer delta on a copy of the tree, and
// commits count, fields and tree together. A failed change leaves the
// document untouched.
//
// Listeners run inline, before ApplyChange returns. A Document is not safe
// for concurrent use; callers that share one across goroutines serialize
// access themselves.
package document
