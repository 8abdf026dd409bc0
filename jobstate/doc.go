// Package jobstate persists per-job scheduling state in a single
// remotely stored document.
//
// The [Store] owns one named, namespaced document in a [docstore.Store]
// and maps job identifiers to serialized [JobState] values inside it.
// The document is created lazily on [Store.Initialize] and never deleted
// by this package.
//
// Every mutation re-reads the document, applies the change in memory and
// writes the whole document back, all under one process-local mutex.
// That makes concurrent in-process callers safe, and keeps the write
// path at one round trip per mutation. It does not protect against a
// second process writing the same document; see the Store documentation.
package jobstate
