// Package k8s provides a ConfigMap-backed docstore.Store implementation.
//
// One document maps to one ConfigMap. Read, Create and Replace translate
// directly to Get, Create and Update on the ConfigMap API, with not-found
// and already-exists conditions mapped to the steward sentinel errors.
//
// Example:
//
//	client := kubernetes.NewForConfigOrDie(rest.InClusterConfig())
//	docs := k8s.New(client)
//	states := jobstate.New(docs, jobstate.WithDocument("job-states", "automation"))
package k8s
