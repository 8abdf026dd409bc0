// Package steward provides durable scheduled-job state and playbook
// execution for Kubernetes-native automation. Job state lives in a single
// remotely stored document (a ConfigMap by default), so scheduled jobs
// survive process restarts and resume where they left off.
//
// Steward is designed as a library, not a service. Import it, configure a
// document store, register playbooks as ordinary Go functions, and
// schedule them.
//
// # Quick Start
//
//	s, err := steward.New(
//	    steward.WithStateStore(states),
//	    steward.WithConcurrency(4),
//	)
//
// # Architecture
//
// Persistence follows a document store pattern: the jobstate package
// performs every read-modify-write against one named, namespaced
// string-to-string document, and the docstore backends (kubernetes,
// memory, redis, postgres, sqlite, mongo, bolt, bun) only implement
// Read, Create and Replace of that whole document.
//
// Entity IDs use TypeID for type-prefixed, K-sortable identifiers.
package steward
