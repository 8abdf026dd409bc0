// Package docstore defines the document persistence contract.
//
// A [Document] is one named, namespaced string-to-string mapping. The
// [Store] interface supports exactly three data operations, Read, Create
// and Replace, because that is all the job-state layer needs: it performs
// read-modify-write cycles over one whole document and never patches
// individual fields.
//
// # Available Backends
//
//   - docstore/k8s — ConfigMap-backed store (the primary backend)
//   - docstore/memory — in-memory store for development and testing
//   - docstore/redis — Redis backend
//   - docstore/postgres — PostgreSQL backend using pgx/v5
//   - docstore/sqlite — SQLite backend
//   - docstore/mongo — MongoDB backend
//   - docstore/bolt — BoltDB backend (single local file)
//   - docstore/bun — Bun ORM backend (PostgreSQL)
//
// # Usage
//
//	import "github.com/xraph/steward/docstore/k8s"
//
//	docs := k8s.New(clientset)
//	states := jobstate.New(docs)
//	if err := states.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// Backends do not serialize concurrent writers. Replace always wins over
// whatever is stored, so two processes sharing one document can clobber
// each other. The jobstate layer serializes writers within one process;
// cross-process coordination is out of scope and documented there.
package docstore
